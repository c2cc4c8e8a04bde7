package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// RuleSpec names a rule and its parameters as written in a schema file.
type RuleSpec struct {
	Name    string   `yaml:"name"`
	Pattern string   `yaml:"pattern,omitempty"`
	Values  []string `yaml:"values,omitempty"`
	Min     *int     `yaml:"min,omitempty"`
	Max     *int     `yaml:"max,omitempty"`
	Message string   `yaml:"message,omitempty"`
}

// RuleFactory compiles a RuleSpec into a Validator.
type RuleFactory func(spec RuleSpec) (Validator, error)

var (
	rules   = make(map[string]RuleFactory)
	rulesMu sync.RWMutex
)

// RegisterRule makes a rule available to schema files.
// Panics if the name is already registered.
func RegisterRule(name string, f RuleFactory) {
	rulesMu.Lock()
	defer rulesMu.Unlock()

	name = strings.ToLower(name)
	if _, exists := rules[name]; exists {
		panic(fmt.Sprintf("rule already registered: %s", name))
	}
	rules[name] = f
}

// RuleNames returns the registered rule names, sorted.
func RuleNames() []string {
	rulesMu.RLock()
	defer rulesMu.RUnlock()

	names := make([]string, 0, len(rules))
	for n := range rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BuildRule compiles spec using the registered factory. A non-empty
// spec.Message replaces the rule's own failure message.
func BuildRule(spec RuleSpec) (Validator, error) {
	rulesMu.RLock()
	f, ok := rules[strings.ToLower(spec.Name)]
	rulesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown rule %q", spec.Name)
	}

	v, err := f(spec)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", spec.Name, err)
	}
	if spec.Message == "" {
		return v, nil
	}
	msg := spec.Message
	return ValidatorFunc(func(value string) (string, error) {
		out, err := v.Validate(value)
		if err != nil {
			return "", errors.New(msg)
		}
		return out, nil
	}), nil
}

// EmailPattern is the address shape accepted by the email rule.
var EmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var phoneChars = regexp.MustCompile(`^\+?[0-9 ().\-]+$`)

func init() {
	RegisterRule("trim", func(RuleSpec) (Validator, error) {
		return Normalize(strings.TrimSpace), nil
	})
	RegisterRule("lower", func(RuleSpec) (Validator, error) {
		return Normalize(strings.ToLower), nil
	})
	RegisterRule("upper", func(RuleSpec) (Validator, error) {
		return Normalize(strings.ToUpper), nil
	})

	RegisterRule("email", func(RuleSpec) (Validator, error) {
		return Check(EmailPattern.MatchString, "Invalid email format"), nil
	})

	RegisterRule("phone", func(RuleSpec) (Validator, error) {
		return ValidatorFunc(func(value string) (string, error) {
			v := strings.TrimSpace(value)
			if !phoneChars.MatchString(v) {
				return "", errors.New("Invalid phone number")
			}
			digits := 0
			for _, r := range v {
				if r >= '0' && r <= '9' {
					digits++
				}
			}
			if digits < 7 || digits > 15 {
				return "", errors.New("Invalid phone number")
			}
			return v, nil
		}), nil
	})

	RegisterRule("numeric", func(RuleSpec) (Validator, error) {
		return ValidatorFunc(func(value string) (string, error) {
			n, cleaned := ParseNumeric(value)
			if !n.Valid {
				return "", errors.New("Must be a number")
			}
			return cleaned, nil
		}), nil
	})

	RegisterRule("integer", func(RuleSpec) (Validator, error) {
		return ValidatorFunc(func(value string) (string, error) {
			cleaned := cleanNumeric(value)
			i, err := strconv.ParseInt(cleaned, 10, 64)
			if err != nil {
				return "", errors.New("Must be a whole number")
			}
			return strconv.FormatInt(i, 10), nil
		}), nil
	})

	RegisterRule("date", func(RuleSpec) (Validator, error) {
		return ValidatorFunc(func(value string) (string, error) {
			d := ParseDate(value)
			if !d.Valid {
				return "", errors.New("Invalid date")
			}
			return d.Time.Format("2006-01-02"), nil
		}), nil
	})

	RegisterRule("bool", func(RuleSpec) (Validator, error) {
		return ValidatorFunc(func(value string) (string, error) {
			b := ParseBool(value)
			if !b.Valid {
				return "", errors.New("Must be yes or no")
			}
			return strconv.FormatBool(b.Bool), nil
		}), nil
	})

	RegisterRule("enum", func(spec RuleSpec) (Validator, error) {
		if len(spec.Values) == 0 {
			return nil, errors.New("values are required")
		}
		allowed := make(map[string]string, len(spec.Values))
		for _, v := range spec.Values {
			allowed[strings.ToLower(strings.TrimSpace(v))] = v
		}
		msg := "Must be one of: " + strings.Join(spec.Values, ", ")
		return ValidatorFunc(func(value string) (string, error) {
			canonical, ok := allowed[strings.ToLower(strings.TrimSpace(value))]
			if !ok {
				return "", errors.New(msg)
			}
			return canonical, nil
		}), nil
	})

	RegisterRule("regex", func(spec RuleSpec) (Validator, error) {
		if spec.Pattern == "" {
			return nil, errors.New("pattern is required")
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, err
		}
		return Check(re.MatchString, "Invalid format"), nil
	})

	RegisterRule("length", func(spec RuleSpec) (Validator, error) {
		if spec.Min == nil && spec.Max == nil {
			return nil, errors.New("min or max is required")
		}
		return ValidatorFunc(func(value string) (string, error) {
			n := utf8.RuneCountInString(value)
			if spec.Min != nil && n < *spec.Min {
				return "", fmt.Errorf("Must be at least %d characters", *spec.Min)
			}
			if spec.Max != nil && n > *spec.Max {
				return "", fmt.Errorf("Must be at most %d characters", *spec.Max)
			}
			return value, nil
		}), nil
	})
}
