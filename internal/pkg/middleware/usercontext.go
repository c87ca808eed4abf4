package middleware

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ManuelReschke/OproPay/app/repository"
	"github.com/ManuelReschke/OproPay/internal/pkg/session"
	"github.com/ManuelReschke/OproPay/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// UserContextMiddleware resolves the purchaser of every request from the
// user id the single sign-on login stored in the session. Requests without
// a known user continue anonymously.
func UserContextMiddleware(users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{})

		store := session.GetSessionStore()
		if store == nil {
			return c.Next()
		}
		sess, err := store.Get(c)
		if err != nil {
			log.Warnf("[UserContext] session unavailable: %v", err)
			return c.Next()
		}

		userID, ok := sessionUserID(sess.Get(usercontext.KeyUserID))
		if !ok {
			return c.Next()
		}

		user, err := users.GetByID(userID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Errorf("[UserContext] could not load user %d: %v", userID, err)
			}
			return c.Next()
		}

		usercontext.Set(c, usercontext.FromUser(*user))
		return c.Next()
	}
}

func sessionUserID(v interface{}) (uint, bool) {
	switch id := v.(type) {
	case uint:
		return id, id > 0
	case int:
		return uint(id), id > 0
	case string:
		n, err := strconv.ParseUint(id, 10, 64)
		return uint(n), err == nil && n > 0
	case nil:
		return 0, false
	default:
		n, err := strconv.ParseUint(fmt.Sprint(id), 10, 64)
		return uint(n), err == nil && n > 0
	}
}
