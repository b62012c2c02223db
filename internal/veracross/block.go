package veracross

import (
	"errors"
	"regexp"
	"strings"

	"schoolsched/internal/model"
)

var (
	errMissingTitle = errors.New("missing title")
	errMissingDate  = errors.New("missing date")
	errMissingEnd   = errors.New("missing end time")
	errExcluded     = errors.New("title excluded")
)

// DefaultExclude matches events that appear on class calendars but are not
// class blocks.
var DefaultExclude = []*regexp.Regexp{regexp.MustCompile(`Morning Choir`)}

var (
	blockLine  = regexp.MustCompile(`(?im)^\s*block\s*:\s*(\S.*?)\s*$`)
	dayLine    = regexp.MustCompile(`(?im)^\s*(?:day|rotation)\s*:\s*([A-Za-z0-9]+)\s*$`)
	titleBlock = regexp.MustCompile(`^(.*\S)\s+-\s+([0-9]{1,2})$`)
)

// ParseBlock converts one occurrence into a RawBlock.
//
// Label and rotation letter come from "Block: <label>" and "Day: <letter>"
// lines in the description; a trailing numeric " - <n>" on the title is
// used when the description has no block line. All-day occurrences keep their
// date but get an invalid start time.
func ParseBlock(occ model.Occurrence, exclude []*regexp.Regexp) (model.RawBlock, error) {
	title := strings.TrimSpace(occ.Summary)
	if title == "" {
		return model.RawBlock{}, errMissingTitle
	}
	for _, re := range exclude {
		if re.MatchString(title) {
			return model.RawBlock{}, errExcluded
		}
	}
	if occ.Start.IsZero() {
		return model.RawBlock{}, errMissingDate
	}
	if occ.End.IsZero() {
		return model.RawBlock{}, errMissingEnd
	}

	start, end := model.InvalidTime, model.InvalidTime
	if !occ.AllDay {
		start = model.TimeOfDayOf(occ.Start)
		end = model.TimeOfDayOf(occ.End)
	}

	label := submatch(blockLine, occ.Description)
	if label == "" {
		if m := titleBlock.FindStringSubmatch(title); m != nil {
			title, label = m[1], m[2]
		}
	}

	return model.RawBlock{
		Title:    title,
		Location: strings.TrimSpace(occ.Location),
		Label:    label,
		Date:     model.DateOf(occ.Start),
		Meta:     model.DayMeta{Letter: strings.ToUpper(submatch(dayLine, occ.Description))},
		Start:    start,
		End:      end,
	}, nil
}

func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}
