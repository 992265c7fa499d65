package providers

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// ClassifyErrorBody produces the single human-readable message for a
// structured upstream error payload. Priority order: error.message with
// its code/type siblings appended, then a top-level message, then a
// top-level detail (JSON-serialized when structured), then a generic
// status line. The message is never parsed further upstream.
func ClassifyErrorBody(root gjson.Result, statusCode int) string {
	if errMsg := root.Get("error.message"); errMsg.Exists() {
		message := errMsg.String()
		if code := root.Get("error.code"); code.Exists() {
			message += fmt.Sprintf(" (Code: %s)", code.String())
		}
		if typ := root.Get("error.type"); typ.Exists() {
			message += fmt.Sprintf(" [Type: %s]", typ.String())
		}
		return message
	}

	if msg := root.Get("message"); msg.Exists() {
		return msg.String()
	}

	if detail := root.Get("detail"); detail.Exists() {
		if detail.Type == gjson.String {
			return detail.String()
		}
		return detail.Raw
	}

	return fmt.Sprintf("API request failed with status code %d", statusCode)
}
