package bluetooth

import (
	"fmt"
	"time"
)

// DescribeRecency renders elapsed as a coarse "time since" bucket.
// Anything an hour or older is reported in hours, however many days it spans.
func DescribeRecency(elapsed time.Duration) string {
	seconds := int64(elapsed / time.Second)
	if seconds < 5 {
		return "just now"
	}
	if seconds < 60 {
		return fmt.Sprintf("%d seconds ago", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	}

	hours := minutes / 60
	if hours == 1 {
		return "1 hour ago"
	}
	return fmt.Sprintf("%d hours ago", hours)
}

// LastSeenText is the list-row form of DescribeRecency.
func LastSeenText(elapsed time.Duration) string {
	return "Last seen " + DescribeRecency(elapsed)
}
