package intake

import (
	"errors"
	"strings"

	"github.com/joelkehle/tender-advisor/internal/tenderanalysis"
)

var ErrEmptyTender = errors.New("tender document has no text")

// ParseTenderText reads "Title:", "Description:" and "Estimated value:" sections.
// Lines after a header continue that section. When there is no title section
// the first line becomes the title, the rest the description, and the default
// estimate is substituted; defaulted reports that substitution.
func ParseTenderText(text string) (req tenderanalysis.TenderRequest, defaulted bool, err error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return req, false, ErrEmptyTender
	}
	lines := strings.Split(text, "\n")

	sections := map[string]string{}
	current := ""
	var bucket []string
	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(strings.Join(bucket, "\n"))
		}
	}
	for _, ln := range lines {
		l := strings.TrimSpace(ln)
		low := strings.ToLower(l)
		switch {
		case strings.HasPrefix(low, "title:"):
			flush()
			current, bucket = "title", []string{strings.TrimSpace(l[len("title:"):])}
		case strings.HasPrefix(low, "description:"):
			flush()
			current, bucket = "description", []string{strings.TrimSpace(l[len("description:"):])}
		case strings.HasPrefix(low, "estimated value"), strings.HasPrefix(low, "estimated_value"):
			flush()
			current, bucket = "estimate", nil
			if _, after, ok := strings.Cut(l, ":"); ok {
				bucket = []string{strings.TrimSpace(after)}
			}
		default:
			if current != "" {
				bucket = append(bucket, l)
			}
		}
	}
	flush()

	req = tenderanalysis.TenderRequest{
		Title:          sections["title"],
		Description:    sections["description"],
		EstimatedValue: sections["estimate"],
	}
	if req.Title == "" {
		req.Title = strings.TrimSpace(lines[0])
		req.Description = strings.TrimSpace(strings.Join(lines[1:], "\n"))
		req.EstimatedValue = tenderanalysis.DefaultEstimatedValue
		defaulted = true
	}
	return req, defaulted, nil
}
