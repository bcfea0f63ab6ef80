// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2022-2023 Dell Inc, or its subsidiaries.

package rule

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

// ErrInvalidRule is returned when a declarative rule cannot be built
var ErrInvalidRule = errors.New("invalid rule")

// Doc is the declarative form of a Rule as written in schema tables
type Doc struct {
	Kind       Kind     `yaml:"kind"`
	Length     int      `yaml:"length,omitempty"`
	Min        string   `yaml:"min,omitempty"`
	Max        string   `yaml:"max,omitempty"`
	Values     []string `yaml:"values,omitempty"`
	Format     string   `yaml:"format,omitempty"`
	AllowEmpty bool     `yaml:"allow_empty,omitempty"`
}

// Parse builds the Rule described by doc
func Parse(doc Doc) (Rule, error) {
	var opts []Option
	if doc.AllowEmpty {
		opts = append(opts, AllowEmpty())
	}

	switch doc.Kind {
	case KindMaxLengthAlphaNum, KindMaxLength:
		if doc.Length <= 0 {
			return nil, fmt.Errorf("%w: %s needs a positive length, got %d", ErrInvalidRule, doc.Kind, doc.Length)
		}
		if doc.Kind == KindMaxLength {
			return MaxLength(doc.Length, opts...), nil
		}
		return MaxLengthAlphaNum(doc.Length, opts...), nil
	case KindRange:
		min, err := strconv.ParseInt(doc.Min, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: range min %q: %v", ErrInvalidRule, doc.Min, err)
		}
		max, err := strconv.ParseInt(doc.Max, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: range max %q: %v", ErrInvalidRule, doc.Max, err)
		}
		if min > max {
			return nil, fmt.Errorf("%w: range min %d above max %d", ErrInvalidRule, min, max)
		}
		return Range(min, max, opts...), nil
	case KindBigIntRange:
		min, ok := new(big.Int).SetString(doc.Min, 10)
		if !ok {
			return nil, fmt.Errorf("%w: bigint_range min %q is not an integer", ErrInvalidRule, doc.Min)
		}
		max, ok := new(big.Int).SetString(doc.Max, 10)
		if !ok {
			return nil, fmt.Errorf("%w: bigint_range max %q is not an integer", ErrInvalidRule, doc.Max)
		}
		if min.Cmp(max) > 0 {
			return nil, fmt.Errorf("%w: bigint_range min %s above max %s", ErrInvalidRule, min, max)
		}
		return BigIntRange(min, max, opts...), nil
	case KindIpv4:
		return Ipv4(opts...), nil
	case KindIpv6:
		return Ipv6(opts...), nil
	case KindMacAddress:
		switch doc.Format {
		case "", "dotted":
			return MacAddress(opts...), nil
		case "colon":
			return MacAddressColon(opts...), nil
		default:
			return nil, fmt.Errorf("%w: unknown mac_address format %q", ErrInvalidRule, doc.Format)
		}
	case KindEnumMembership:
		if len(doc.Values) == 0 {
			return nil, fmt.Errorf("%w: enum without values", ErrInvalidRule)
		}
		return EnumMembership(doc.Values, opts...), nil
	case KindAny:
		return Any(), nil
	case KindObject:
		return Object(), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, doc.Kind)
	}
}
