package telemetry

import "strconv"

// SessionKey derives the aggregation identity of a workout from the user and the
// client-chosen session number. Retried uploads for the same workout resolve to
// the same key and therefore land in the same document.
func SessionKey(userID int64, sessionNum int) string {
	return strconv.FormatInt(userID, 10) + "-" + strconv.Itoa(sessionNum)
}
