package usercontext

import (
	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/gofiber/fiber/v2"
)

// UserContext represents the purchaser of a request
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// FromUser builds the context of a logged-in user.
func FromUser(u models.User) UserContext {
	return UserContext{
		UserID:     u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FirstName:  u.FirstName,
		IsLoggedIn: true,
	}
}

// User returns the local account mirror described by the context.
func (u UserContext) User() models.User {
	return models.User{ID: u.UserID, Username: u.Username, Email: u.Email, FirstName: u.FirstName}
}

// Set stores the user context for the rest of the request.
func Set(c *fiber.Ctx, u UserContext) {
	c.Locals(KeyUserContext, u)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
