package retry

import (
	"fmt"
	"strconv"
	"time"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func attemptMetadata(attempt int, kind Kind, delay time.Duration, err error) string {
	return fmt.Sprintf(`{"attempt":%d,"kind":%q,"delay_ms":%d,"error":%q}`,
		attempt, kind, delay.Milliseconds(), err.Error())
}
