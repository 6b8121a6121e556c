// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/debdevops/servicehub/internal/models"
)

// ConditionError reports a condition that cannot be evaluated,
// identified by its zero-based index in the rule.
type ConditionError struct {
	Index int
	Err   error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %d: %v", e.Index, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// compiledRule is a rule with its regex conditions pre-compiled.
// Conditions index-aligns with regexes; non-regex slots are nil.
type compiledRule struct {
	rule    models.Rule
	regexes []*regexp.Regexp
}

// regexCache memoizes compiled condition regexes keyed by rule id and
// version, so a rule's patterns compile once per definition.
type regexCache struct {
	mu sync.Mutex
	m  map[regexKey]*regexp.Regexp
}

type regexKey struct {
	ruleID  string
	version int64
	index   int
}

func newRegexCache() *regexCache {
	return &regexCache{m: make(map[regexKey]*regexp.Regexp)}
}

func (c *regexCache) compile(ruleID string, version int64, index int, cond models.RuleCondition) (*regexp.Regexp, error) {
	key := regexKey{ruleID: ruleID, version: version, index: index}

	c.mu.Lock()
	re, ok := c.m[key]
	c.mu.Unlock()
	if ok {
		return re, nil
	}

	re, err := compileCondition(cond)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.m[key] = re
	c.mu.Unlock()
	return re, nil
}

func compileCondition(cond models.RuleCondition) (*regexp.Regexp, error) {
	pattern := cond.Value
	if !cond.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// compile pre-compiles every regex condition of a rule, using the cache
// when the rule has an id. A compile failure is returned as a
// ConditionError naming the offending condition.
func (c *regexCache) compileRule(r models.Rule) (compiledRule, error) {
	cr := compiledRule{rule: r, regexes: make([]*regexp.Regexp, len(r.Conditions))}
	for i, cond := range r.Conditions {
		if cond.Operator != models.OpRegex {
			continue
		}
		var (
			re  *regexp.Regexp
			err error
		)
		if r.ID != "" {
			re, err = c.compile(r.ID, r.Version, i, cond)
		} else {
			re, err = compileCondition(cond)
		}
		if err != nil {
			return compiledRule{}, &ConditionError{Index: i, Err: err}
		}
		cr.regexes[i] = re
	}
	return cr, nil
}

// matches reports whether every condition of the rule holds for the
// entry. Conditions are ANDed; an empty condition list never matches.
func (cr compiledRule) matches(entry *models.DlqHistoryEntry) bool {
	if len(cr.rule.Conditions) == 0 {
		return false
	}
	for i, cond := range cr.rule.Conditions {
		if !matchCondition(entry, cond, cr.regexes[i]) {
			return false
		}
	}
	return true
}

func matchCondition(entry *models.DlqHistoryEntry, cond models.RuleCondition, re *regexp.Regexp) bool {
	// Numeric comparisons only apply to DeliveryCount; against string
	// fields they never match.
	if cond.Operator == models.OpGreaterThan || cond.Operator == models.OpLessThan {
		if cond.Field != models.FieldDeliveryCount {
			return false
		}
		threshold, err := strconv.ParseInt(strings.TrimSpace(cond.Value), 10, 64)
		if err != nil {
			return false
		}
		if cond.Operator == models.OpGreaterThan {
			return entry.DeliveryCount > threshold
		}
		return entry.DeliveryCount < threshold
	}

	actual, ok := fieldValue(entry, cond)
	if !ok {
		return false
	}

	expected := cond.Value
	if !cond.CaseSensitive {
		actual = strings.ToLower(actual)
		expected = strings.ToLower(expected)
	}

	switch cond.Operator {
	case models.OpContains:
		return strings.Contains(actual, expected)
	case models.OpNotContains:
		return !strings.Contains(actual, expected)
	case models.OpEquals:
		return actual == expected
	case models.OpNotEquals:
		return actual != expected
	case models.OpStartsWith:
		return strings.HasPrefix(actual, expected)
	case models.OpEndsWith:
		return strings.HasSuffix(actual, expected)
	case models.OpRegex:
		return re != nil && re.MatchString(actual)
	case models.OpIn:
		for _, candidate := range strings.Split(expected, ",") {
			if actual == strings.TrimSpace(candidate) {
				return true
			}
		}
		return false
	}
	return false
}

// fieldValue resolves the condition's field to its string form. The
// second return is false when the field is absent (an application
// property the entry does not carry).
func fieldValue(entry *models.DlqHistoryEntry, cond models.RuleCondition) (string, bool) {
	switch cond.Field {
	case models.FieldDeadLetterReason:
		return entry.DeadLetterReason, true
	case models.FieldDeadLetterErrorDescription:
		return entry.DeadLetterErrorDescription, true
	case models.FieldFailureCategory:
		return string(entry.FailureCategory), true
	case models.FieldEntityName:
		return entry.EntityName, true
	case models.FieldDeliveryCount:
		return strconv.FormatInt(entry.DeliveryCount, 10), true
	case models.FieldContentType:
		return entry.ContentType, true
	case models.FieldTopicName:
		return entry.TopicName, true
	case models.FieldCorrelationID:
		return entry.CorrelationID, true
	case models.FieldApplicationProperty:
		return applicationProperty(entry, cond.PropertyKey)
	}
	return "", false
}

func applicationProperty(entry *models.DlqHistoryEntry, key string) (string, bool) {
	if key == "" || entry.ApplicationPropertiesJSON == "" {
		return "", false
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(entry.ApplicationPropertiesJSON), &props); err != nil {
		return "", false
	}
	v, ok := props[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// ValidateConditions checks a condition list the way rule create/update
// does: every field and operator must be known, regexes must compile and
// ApplicationProperty conditions must carry a property key. The first
// failing condition is reported by index.
func ValidateConditions(conditions []models.RuleCondition) error {
	if len(conditions) == 0 {
		return &ConditionError{Index: 0, Err: fmt.Errorf("rule needs at least one condition")}
	}
	for i, cond := range conditions {
		if !cond.Field.Valid() {
			return &ConditionError{Index: i, Err: fmt.Errorf("unknown field %q", cond.Field)}
		}
		if !cond.Operator.Valid() {
			return &ConditionError{Index: i, Err: fmt.Errorf("unknown operator %q", cond.Operator)}
		}
		if cond.Field == models.FieldApplicationProperty && cond.PropertyKey == "" {
			return &ConditionError{Index: i, Err: fmt.Errorf("propertyKey is required for ApplicationProperty")}
		}
		if cond.Operator == models.OpRegex {
			if _, err := compileCondition(cond); err != nil {
				return &ConditionError{Index: i, Err: fmt.Errorf("invalid regex: %w", err)}
			}
		}
	}
	return nil
}
