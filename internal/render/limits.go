package render

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// FarmError is a non-2xx response from the render farm
type FarmError struct {
	StatusCode int
	Message    string
}

func (e *FarmError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("render farm returned %d: %s", e.StatusCode, e.Message)
}

// RejectionClass tells the launcher how to react to a failed launch
type RejectionClass int

const (
	// RejectionFatal is not retried
	RejectionFatal RejectionClass = iota
	// RejectionWorkerLimit means the plan spawned more workers than the farm allows
	RejectionWorkerLimit
	// RejectionThrottled means the farm or account is rate limited or saturated
	RejectionThrottled
)

func (c RejectionClass) String() string {
	switch c {
	case RejectionWorkerLimit:
		return "worker_limit"
	case RejectionThrottled:
		return "throttled"
	default:
		return "fatal"
	}
}

// The farm reports limits in free text, e.g.
// "Too many functions: This render would cause 884 functions to spawn. We
// limit this amount to 200 functions as more would not be beneficial."
// None of this is versioned, so every pattern has a fallback.
var (
	enforcedLimitPattern = regexp.MustCompile(`(?i)limit\s+(?:this\s+amount\s+)?to\s+(\d+)`)
	wouldSpawnPattern    = regexp.MustCompile(`(?i)would\s+cause\s+(\d+)\s+functions?`)
	workerLimitPattern   = regexp.MustCompile(`(?i)too\s+many\s+functions|functions\s+to\s+spawn|limit\s+this\s+amount`)
	throttlePattern      = regexp.MustCompile(`(?i)rate\s+exceeded|too\s*many\s*requests|throttl|concurrency\s+limit|concurrentinvocationlimitexceeded|reserved\s+concurrency`)
)

// ClassifyFarmError decides whether a launch error may be retried with a
// smaller plan.
func ClassifyFarmError(err error) RejectionClass {
	if err == nil {
		return RejectionFatal
	}

	msg := err.Error()
	var farmErr *FarmError
	if errors.As(err, &farmErr) {
		msg = farmErr.Message
	}

	if workerLimitPattern.MatchString(msg) {
		return RejectionWorkerLimit
	}
	if throttlePattern.MatchString(msg) {
		return RejectionThrottled
	}
	if farmErr != nil && farmErr.StatusCode == http.StatusTooManyRequests {
		return RejectionThrottled
	}
	return RejectionFatal
}

// ParseEnforcedLimit extracts the worker limit the farm says it enforces.
func ParseEnforcedLimit(msg string) (int, bool) {
	return firstInt(enforcedLimitPattern, msg)
}

// ParseWouldSpawn extracts the worker count the rejected attempt would have used.
func ParseWouldSpawn(msg string) (int, bool) {
	return firstInt(wouldSpawnPattern, msg)
}

func firstInt(re *regexp.Regexp, msg string) (int, bool) {
	m := re.FindStringSubmatch(msg)
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// NextWorkerCeiling computes the ceiling for the attempt after a rejection.
// The result never exceeds current and is at least 1.
func NextWorkerCeiling(current int, class RejectionClass, msg string) int {
	if class == RejectionWorkerLimit {
		if limit, ok := ParseEnforcedLimit(msg); ok && limit < current {
			return limit
		}
	}
	return max(current/2, 1)
}
