package supervisorv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts v, which must encode to a JSON object, to a Struct
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error encoding message: %w", err)
	}

	var s structpb.Struct
	if err = protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("error converting message: %w", err)
	}

	return &s, nil
}

// FromStruct decodes s into v
func FromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("error converting message: %w", err)
	}

	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error decoding message: %w", err)
	}

	return nil
}
