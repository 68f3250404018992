// Copyright (c) 2025 kqlnb
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package gateway carries notebook queries over gRPC. Messages are
// google.protobuf.Struct values holding the JSON shape of kusto result sets
// and schemas, so no generated stubs are needed on either side.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"kqlnb/cli/internal/kusto"
)

// Full method names of the QueryGateway service.
const (
	ServiceName     = "kqlnb.gateway.v1.QueryGateway"
	MethodExecute   = "/" + ServiceName + "/Execute"
	MethodGetSchema = "/" + ServiceName + "/GetSchema"
)

// executeRequest is the payload of MethodExecute.
type executeRequest struct {
	Database string `json:"database"`
	Query    string `json:"query"`
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return s, nil
}

// fromStruct decodes s into v. Numbers are kept as json.Number to match
// the REST clients.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}

// queryErrorDetail is attached to status errors carrying a *kusto.QueryError.
func queryErrorDetail(qe *kusto.QueryError) *structpb.Struct {
	s, _ := structpb.NewStruct(map[string]any{
		"code":         qe.Code,
		"message":      qe.Message,
		"innerMessage": qe.InnerMessage,
	})
	return s
}

func queryErrorFromDetail(s *structpb.Struct) (*kusto.QueryError, bool) {
	f := s.GetFields()
	msg, ok := f["message"]
	if !ok {
		return nil, false
	}
	return &kusto.QueryError{
		Code:         f["code"].GetStringValue(),
		Message:      msg.GetStringValue(),
		InnerMessage: f["innerMessage"].GetStringValue(),
	}, true
}
