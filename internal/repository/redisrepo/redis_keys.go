package redisrepo

import "fmt"

const (
	USER_UNREAD_COUNT = "user:%s-unread-count" // <userID>
	IDEMPOTENCY_KEY   = "idempotency:%s:%s"    // <scope>:<key>
)

func UserUnreadCountKey(userID string) string {
	return fmt.Sprintf(USER_UNREAD_COUNT, userID)
}

func IdempotencyKey(scope, key string) string {
	return fmt.Sprintf(IDEMPOTENCY_KEY, scope, key)
}
