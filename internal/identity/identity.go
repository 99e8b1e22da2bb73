// Package identity derives the stable id linking a scraped appointment to
// the calendar event created from it.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

const separator = "|"

// AppointmentID hashes the immutable business fields of an appointment.
// Time and address are deliberately excluded: a rescheduled appointment on
// the same day at the same studio keeps its id and is handled as an update,
// not as a delete plus create.
func AppointmentID(date, studio, note string) string {
	h := sha256.New()
	h.Write([]byte(date))
	h.Write([]byte(separator))
	h.Write([]byte(studio))
	h.Write([]byte(separator))
	h.Write([]byte(note))
	return hex.EncodeToString(h.Sum(nil))
}
