package synchron

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"synchronsync/internal/models"
)

// The portal renders the appointments table with inline styles and no
// classes; row kinds are only distinguishable by their style attribute.
const (
	appointmentRowSelector = `tr[style="color: black; background: whitesmoke"]`
	dateHeaderSelector     = `tr[style="color: white; background: #9BC7E6; width: 100px"]`
)

// parseAppointments extracts appointment rows from the events page. max
// caps the number of rows taken; zero takes all.
func parseAppointments(doc *goquery.Document, max int) []models.RawAppointment {
	var appointments []models.RawAppointment

	doc.Find(appointmentRowSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if max > 0 && len(appointments) >= max {
			return false
		}

		cells := row.Find("td")
		if cells.Length() < 2 {
			return true
		}

		start, end := splitTimeRange(cells.Eq(0).Text())

		studioCell := cells.Eq(1)
		studio := collapseSpace(studioCell.Find("b").First().Text())
		address := collapseSpace(strings.Replace(studioCell.Text(), studio, "", 1))

		var note string
		if cells.Length() > 2 {
			note = collapseSpace(cells.Eq(2).Text())
		}

		appointments = append(appointments, models.RawAppointment{
			Date:      findDateHeader(row),
			StartTime: start,
			EndTime:   end,
			Studio:    studio,
			Address:   address,
			Note:      note,
		})
		return true
	})

	return appointments
}

// findDateHeader walks back to the nearest date header row above the
// appointment row and returns its date cell.
func findDateHeader(row *goquery.Selection) string {
	header := row.PrevAllFiltered(dateHeaderSelector).First()
	return collapseSpace(header.Find("td").Eq(1).Text())
}

// splitTimeRange takes the raw time cell ("09:00\n13:00", "09:0013:00" or
// "09:00 - 13:00" depending on rendering) and yields start and end clock
// strings. The first five non-space characters are the start time.
func splitTimeRange(raw string) (string, string) {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	if len(stripped) < 5 {
		return stripped, ""
	}
	start := stripped[:5]
	end := strings.TrimLeft(stripped[5:], "-")
	return start, end
}

// collapseSpace trims a string and folds internal whitespace runs into
// single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
