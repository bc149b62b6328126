package svcclient

import (
	"context"
	"fmt"

	"labreserve/internal/model"
)

// UserInfo is the public view of a user returned by the users service.
type UserInfo struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
}

// UsersClient resolves users through the users service.
type UsersClient struct {
	client
}

func NewUsersClient(opts Options) *UsersClient {
	return &UsersClient{client: newClient("users", opts)}
}

// GetUser returns ErrNotFound for unknown ids and ErrUnavailable when the
// service cannot be reached.
func (c *UsersClient) GetUser(ctx context.Context, id int64) (*UserInfo, error) {
	endpoint := fmt.Sprintf("%s/users/internal/%d", c.baseURL, id)
	var user UserInfo
	if err := c.doGet(ctx, endpoint, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
