package usercontext

// Shared Locals/session keys used across controllers and middlewares.
// The single sign-on login writes KeyUserID into the checkout session.
const (
	KeyUserContext = "USER_CONTEXT"
	KeyUserID      = "user_id"
)
