// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.
// Copyright (C) 2023 Nordix Foundation.

// Package rule holds the atomic value checks applied to single request fields
package rule

import (
	"fmt"
	"math/big"
	"net/netip"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies the family of a Rule
type Kind string

const (
	// KindMaxLengthAlphaNum is an alphanumeric name with a maximum length
	KindMaxLengthAlphaNum Kind = "max_length_alnum"
	// KindMaxLength is free text with a maximum length
	KindMaxLength Kind = "max_length"
	// KindRange is an inclusive 64-bit integer range
	KindRange Kind = "range"
	// KindBigIntRange is an inclusive arbitrary precision integer range
	KindBigIntRange Kind = "bigint_range"
	// KindIpv4 is a dotted quad IPv4 address
	KindIpv4 Kind = "ipv4"
	// KindIpv6 is an IPv6 address in text form
	KindIpv6 Kind = "ipv6"
	// KindMacAddress is a MAC address
	KindMacAddress Kind = "mac_address"
	// KindEnumMembership is membership in a fixed set of values
	KindEnumMembership Kind = "enum"
	// KindAny accepts any primitive value
	KindAny Kind = "any"
	// KindObject marks a nested JSON object, its children carry the rules
	KindObject Kind = "object"
)

// Rule is a stateless predicate over one raw field value.
// A nil raw value means the field was present but set to JSON null.
type Rule interface {
	Kind() Kind
	Evaluate(raw *string) bool
	String() string
}

// Option tweaks a rule at construction time
type Option func(*base)

// AllowEmpty makes the rule accept the empty string
func AllowEmpty() Option {
	return func(b *base) {
		b.allowEmpty = true
	}
}

type base struct {
	kind       Kind
	allowEmpty bool
}

func (b *base) Kind() Kind {
	return b.kind
}

// pre handles the null and empty cases shared by every kind,
// done reports whether the verdict is already known
func (b *base) pre(raw *string) (value string, verdict bool, done bool) {
	if raw == nil {
		return "", false, true
	}
	if *raw == "" {
		return "", b.allowEmpty, true
	}
	return *raw, false, false
}

func newBase(kind Kind, opts []Option) base {
	b := base{kind: kind}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

var alphaNumPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_]*$`)

type maxLengthAlphaNum struct {
	base
	length int
}

// MaxLengthAlphaNum accepts names made of letters, digits and underscores,
// starting with a letter or digit, at most length characters long
func MaxLengthAlphaNum(length int, opts ...Option) Rule {
	return &maxLengthAlphaNum{base: newBase(KindMaxLengthAlphaNum, opts), length: length}
}

func (r *maxLengthAlphaNum) Evaluate(raw *string) bool {
	value, verdict, done := r.pre(raw)
	if done {
		return verdict
	}
	return len(value) <= r.length && alphaNumPattern.MatchString(value)
}

func (r *maxLengthAlphaNum) String() string {
	return fmt.Sprintf("%s(%d)", r.kind, r.length)
}

type maxLength struct {
	base
	length int
}

// MaxLength accepts any text of at most length characters, including the empty string
func MaxLength(length int, opts ...Option) Rule {
	r := &maxLength{base: newBase(KindMaxLength, opts), length: length}
	r.allowEmpty = true
	return r
}

func (r *maxLength) Evaluate(raw *string) bool {
	value, verdict, done := r.pre(raw)
	if done {
		return verdict
	}
	return utf8.RuneCountInString(value) <= r.length
}

func (r *maxLength) String() string {
	return fmt.Sprintf("%s(%d)", r.kind, r.length)
}

type intRange struct {
	base
	min, max int64
}

// Range accepts decimal integers within [min, max]
func Range(min, max int64, opts ...Option) Rule {
	return &intRange{base: newBase(KindRange, opts), min: min, max: max}
}

func (r *intRange) Evaluate(raw *string) bool {
	value, verdict, done := r.pre(raw)
	if done {
		return verdict
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false
	}
	return n >= r.min && n <= r.max
}

func (r *intRange) String() string {
	return fmt.Sprintf("%s[%d,%d]", r.kind, r.min, r.max)
}

type bigIntRange struct {
	base
	min, max *big.Int
}

// BigIntRange accepts decimal integers within [min, max] where the bounds
// may not fit into 64 bits
func BigIntRange(min, max *big.Int, opts ...Option) Rule {
	return &bigIntRange{
		base: newBase(KindBigIntRange, opts),
		min:  new(big.Int).Set(min),
		max:  new(big.Int).Set(max),
	}
}

func (r *bigIntRange) Evaluate(raw *string) bool {
	value, verdict, done := r.pre(raw)
	if done {
		return verdict
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return false
	}
	return n.Cmp(r.min) >= 0 && n.Cmp(r.max) <= 0
}

func (r *bigIntRange) String() string {
	return fmt.Sprintf("%s[%s,%s]", r.kind, r.min, r.max)
}

type ipv4 struct {
	base
}

// Ipv4 accepts dotted quad IPv4 addresses
func Ipv4(opts ...Option) Rule {
	return &ipv4{base: newBase(KindIpv4, opts)}
}

func (r *ipv4) Evaluate(raw *string) bool {
	value, verdict, done := r.pre(raw)
	if done {
		return verdict
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return false
	}
	return addr.Is4()
}

func (r *ipv4) String() string {
	return string(r.kind)
}

type ipv6 struct {
	base
}

// Ipv6 accepts IPv6 addresses without a zone
func Ipv6(opts ...Option) Rule {
	return &ipv6{base: newBase(KindIpv6, opts)}
}

func (r *ipv6) Evaluate(raw *string) bool {
	value, verdict, done := r.pre(raw)
	if done {
		return verdict
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return false
	}
	return addr.Is6() && addr.Zone() == ""
}

func (r *ipv6) String() string {
	return string(r.kind)
}

var (
	macDottedPattern = regexp.MustCompile(`^[0-9a-fA-F]{4}\.[0-9a-fA-F]{4}\.[0-9a-fA-F]{4}$`)
	macColonPattern  = regexp.MustCompile(`^[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}$`)
)

type macAddress struct {
	base
	pattern *regexp.Regexp
	format  string
}

// MacAddress accepts MAC addresses in the controller's dotted form, e.g. 0000.5e00.5301
func MacAddress(opts ...Option) Rule {
	return &macAddress{base: newBase(KindMacAddress, opts), pattern: macDottedPattern, format: "dotted"}
}

// MacAddressColon accepts MAC addresses in colon form, e.g. 00:00:5e:00:53:01
func MacAddressColon(opts ...Option) Rule {
	return &macAddress{base: newBase(KindMacAddress, opts), pattern: macColonPattern, format: "colon"}
}

func (r *macAddress) Evaluate(raw *string) bool {
	value, verdict, done := r.pre(raw)
	if done {
		return verdict
	}
	return r.pattern.MatchString(value)
}

func (r *macAddress) String() string {
	return fmt.Sprintf("%s(%s)", r.kind, r.format)
}

type enumMembership struct {
	base
	values map[string]struct{}
}

// EnumMembership accepts exactly one of values, compared case sensitively
func EnumMembership(values []string, opts ...Option) Rule {
	r := &enumMembership{base: newBase(KindEnumMembership, opts), values: make(map[string]struct{}, len(values))}
	for _, v := range values {
		r.values[v] = struct{}{}
	}
	return r
}

func (r *enumMembership) Evaluate(raw *string) bool {
	value, verdict, done := r.pre(raw)
	if done {
		return verdict
	}
	_, ok := r.values[value]
	return ok
}

// Values returns the sorted set of accepted values
func (r *enumMembership) Values() []string {
	values := make([]string, 0, len(r.values))
	for v := range r.values {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func (r *enumMembership) String() string {
	return fmt.Sprintf("%s{%s}", r.kind, strings.Join(r.Values(), ","))
}

type anyValue struct {
	base
}

// Any accepts every non null primitive value
func Any() Rule {
	r := &anyValue{base: newBase(KindAny, nil)}
	r.allowEmpty = true
	return r
}

func (r *anyValue) Evaluate(raw *string) bool {
	return raw != nil
}

func (r *anyValue) String() string {
	return string(r.kind)
}

type object struct {
	base
}

// Object marks a field holding a nested JSON object. It never accepts
// a primitive value, the validator descends into the object instead.
func Object() Rule {
	return &object{base: newBase(KindObject, nil)}
}

func (r *object) Evaluate(_ *string) bool {
	return false
}

func (r *object) String() string {
	return string(r.kind)
}
