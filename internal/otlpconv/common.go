// Copyright (c) 2022 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package otlpconv projects between this repository's domain types and the
// generated go.opentelemetry.io/proto/otlp wire types, shared by the
// forwarder's OTLP serializer and the aggregator's OTLP ingest endpoints so
// the two sides of the wire agree on exactly one conversion.
package otlpconv

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
)

// FlattenAttributes converts an OTLP KeyValue list to a flat string map,
// grounded on the flattenKVList helper real OTLP ingesters in the corpus
// use for resource/scope/log attribute merging.
func FlattenAttributes(kvs []*commonpb.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return map[string]string{}
	}
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		if kv == nil {
			continue
		}
		m[kv.Key] = AnyValueToString(kv.Value)
	}
	return m
}

// AnyValueToString renders an OTLP AnyValue as its string representation:
// primitives print bare, containers become compact JSON.
func AnyValueToString(v *commonpb.AnyValue) string {
	if v == nil {
		return ""
	}
	switch val := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		data, _ := json.Marshal(arrayValueToSlice(val.ArrayValue))
		return string(data)
	case *commonpb.AnyValue_KvlistValue:
		data, _ := json.Marshal(FlattenAttributes(val.KvlistValue.Values))
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func arrayValueToSlice(av *commonpb.ArrayValue) []any {
	if av == nil {
		return nil
	}
	out := make([]any, len(av.Values))
	for i, v := range av.Values {
		out[i] = AnyValueToString(v)
	}
	return out
}

// StringAttributes builds an OTLP KeyValue list from a flat string map,
// used when projecting an EnrichedLogEntry's HTTP fields into OTel
// attributes for the forwarder's outbound OTLP encoding.
func StringAttributes(fields map[string]string) []*commonpb.KeyValue {
	if len(fields) == 0 {
		return nil
	}
	out := make([]*commonpb.KeyValue, 0, len(fields))
	for k, v := range fields {
		out = append(out, &commonpb.KeyValue{
			Key:   k,
			Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}},
		})
	}
	return out
}
