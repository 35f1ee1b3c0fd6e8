package course

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

var (
	itemTypeTag  = "itemtype"
	itemTypeText = "invalid item type"

	batchEventTag  = "batchevent"
	batchEventText = "event must be one of publish, unpublish, delete"

	itemTypes = map[string]bool{
		ContentAssignment:  true,
		ContentQuiz:        true,
		ContentDiscussion:  true,
		ContentPage:        true,
		ContentAttachment:  true,
		ContentExternalURL: true,
		ContentSubHeader:   true,
	}
)

func init() {
	core.RegisterValidation(itemTypeTag, itemTypeText, itemTypeValidation)
	core.RegisterValidation(batchEventTag, batchEventText, batchEventValidation)
}

// itemTypeValidation checks that an item's content type is a known kind.
func itemTypeValidation(fl validator.FieldLevel) bool {
	return itemTypes[fl.Field().String()]
}

// batchEventValidation checks that a batch update event is one of the three lifecycle events.
func batchEventValidation(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case EventPublish, EventUnpublish, EventDelete:
		return true
	}
	return false
}
