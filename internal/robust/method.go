package robust

import (
	"fmt"
	"strings"
)

// Method selects the robust estimation scheme.
type Method int

const (
	RANSAC Method = iota
	LMedS
	MSAC
	PROSAC
	PROMedS
)

var methodNames = [...]string{"ransac", "lmeds", "msac", "prosac", "promeds"}

func (m Method) String() string {
	if m.valid() {
		return methodNames[m]
	}
	return fmt.Sprintf("method(%d)", int(m))
}

func (m Method) valid() bool {
	return m >= RANSAC && m <= PROMedS
}

// UsesQualityScores reports whether the method samples by quality score.
func (m Method) UsesQualityScores() bool {
	return m == PROSAC || m == PROMedS
}

// usesMedian reports whether hypotheses are ranked by median residual.
func (m Method) usesMedian() bool {
	return m == LMedS || m == PROMedS
}

// ParseMethod maps a method name (case insensitive) to a Method.
func ParseMethod(s string) (Method, error) {
	for i, name := range methodNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown robust method %q", ErrInvalidArgument, s)
}

func (m Method) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w: unknown robust method %d", ErrInvalidArgument, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
