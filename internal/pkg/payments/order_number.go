package payments

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ManuelReschke/OproPay/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// joinIDs joins link ids with dashes in ascending order.
func joinIDs(ids []uint) string {
	sorted := append([]uint(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, "-")
}

// SessionOrderNumber is the stable key of a session purchase:
// "{mode}-{session_id}-{user_id}-{link_ids}". The trailing separator stays
// when no upsales are bought.
func SessionOrderNumber(mode string, sessionID, userID uint, linkIDs []uint) string {
	return TruncateOrderNumber(fmt.Sprintf("%s-%d-%d-%s", mode, sessionID, userID, joinIDs(linkIDs)))
}

// ModuleOrderNumber is "edmodule-{module_id}-{user_id}-{unix_ts}-{link_ids}".
func ModuleOrderNumber(moduleID, userID uint, unixTS int64, linkIDs []uint) string {
	return TruncateOrderNumber(fmt.Sprintf("edmodule-%d-%d-%d-%s", moduleID, userID, unixTS, joinIDs(linkIDs)))
}

// GiftOrderNumber prefixes an order number with the receiver, so a gift and
// an own purchase of the same product never share a key.
func GiftOrderNumber(receiverID uint, orderNumber string) string {
	return TruncateOrderNumber(fmt.Sprintf("gift-%d-%s", receiverID, orderNumber))
}

// TruncateOrderNumber keeps the first MaxOrderNumberLength characters.
func TruncateOrderNumber(orderNumber string) string {
	if len(orderNumber) <= models.MaxOrderNumberLength {
		return orderNumber
	}
	log.Infof("[OrderBuilder] Order number exceeds max length: %s", orderNumber)
	return orderNumber[:models.MaxOrderNumberLength]
}
