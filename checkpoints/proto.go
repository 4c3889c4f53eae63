package checkpoints

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the checkpoint wire message.
//
//	message Checkpoint {
//	  string run_id = 1;
//	  string framework = 2;
//	  string version = 3;
//	  int64 created_at_unix_nano = 4;
//	  string description = 5;
//	  string geometry = 6;
//	  TrainingState training_state = 7;
//	  repeated Weight weights = 8;
//	}
//	message TrainingState {
//	  uint64 epoch = 1; uint64 step = 2; uint64 total_steps = 3;
//	  double learning_rate = 4; double loss = 5;
//	}
//	message Weight { string name = 1; repeated uint64 shape = 2; repeated double data = 3; }
const (
	fieldRunID         protowire.Number = 1
	fieldFramework     protowire.Number = 2
	fieldVersion       protowire.Number = 3
	fieldCreatedAt     protowire.Number = 4
	fieldDescription   protowire.Number = 5
	fieldGeometry      protowire.Number = 6
	fieldTrainingState protowire.Number = 7
	fieldWeight        protowire.Number = 8

	fieldStateEpoch      protowire.Number = 1
	fieldStateStep       protowire.Number = 2
	fieldStateTotalSteps protowire.Number = 3
	fieldStateLR         protowire.Number = 4
	fieldStateLoss       protowire.Number = 5

	fieldWeightName  protowire.Number = 1
	fieldWeightShape protowire.Number = 2
	fieldWeightData  protowire.Number = 3
)

// MarshalProto encodes a checkpoint in protobuf wire format
func MarshalProto(c *Checkpoint) []byte {
	var b []byte
	b = appendString(b, fieldRunID, c.Metadata.RunID)
	b = appendString(b, fieldFramework, c.Metadata.Framework)
	b = appendString(b, fieldVersion, c.Metadata.Version)
	if !c.Metadata.CreatedAt.IsZero() {
		b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.Metadata.CreatedAt.UnixNano()))
	}
	b = appendString(b, fieldDescription, c.Metadata.Description)
	b = appendString(b, fieldGeometry, c.Metadata.Geometry)

	b = protowire.AppendTag(b, fieldTrainingState, protowire.BytesType)
	b = protowire.AppendBytes(b, marshalTrainingState(c.TrainingState))

	for _, w := range c.Weights {
		b = protowire.AppendTag(b, fieldWeight, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalWeight(w))
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func marshalTrainingState(s TrainingState) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldStateEpoch, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Epoch))
	b = protowire.AppendTag(b, fieldStateStep, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Step))
	b = protowire.AppendTag(b, fieldStateTotalSteps, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.TotalSteps))
	b = protowire.AppendTag(b, fieldStateLR, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.LearningRate))
	b = protowire.AppendTag(b, fieldStateLoss, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(s.Loss))
	return b
}

func marshalWeight(w WeightTensor) []byte {
	var b []byte
	b = appendString(b, fieldWeightName, w.Name)

	var shape []byte
	for _, d := range w.Shape {
		shape = protowire.AppendVarint(shape, uint64(d))
	}
	b = protowire.AppendTag(b, fieldWeightShape, protowire.BytesType)
	b = protowire.AppendBytes(b, shape)

	data := make([]byte, 0, 8*len(w.Data))
	for _, v := range w.Data {
		data = protowire.AppendFixed64(data, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, fieldWeightData, protowire.BytesType)
	b = protowire.AppendBytes(b, data)
	return b
}

// UnmarshalProto decodes a checkpoint from protobuf wire format. Unknown
// fields are skipped.
func UnmarshalProto(b []byte) (*Checkpoint, error) {
	c := &Checkpoint{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num != fieldCreatedAt:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			if err := c.setBytesField(num, v); err != nil {
				return nil, err
			}
		case typ == protowire.VarintType && num == fieldCreatedAt:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			c.Metadata.CreatedAt = time.Unix(0, int64(v)).UTC()
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return c, nil
}

func (c *Checkpoint) setBytesField(num protowire.Number, v []byte) error {
	switch num {
	case fieldRunID:
		c.Metadata.RunID = string(v)
	case fieldFramework:
		c.Metadata.Framework = string(v)
	case fieldVersion:
		c.Metadata.Version = string(v)
	case fieldDescription:
		c.Metadata.Description = string(v)
	case fieldGeometry:
		c.Metadata.Geometry = string(v)
	case fieldTrainingState:
		s, err := unmarshalTrainingState(v)
		if err != nil {
			return errors.Wrap(err, "training_state")
		}
		c.TrainingState = s
	case fieldWeight:
		w, err := unmarshalWeight(v)
		if err != nil {
			return errors.Wrapf(err, "weight %d", len(c.Weights))
		}
		c.Weights = append(c.Weights, w)
	}
	return nil
}

func unmarshalTrainingState(b []byte) (TrainingState, error) {
	var s TrainingState
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && num <= fieldStateTotalSteps:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldStateEpoch:
				s.Epoch = int(v)
			case fieldStateStep:
				s.Step = int(v)
			case fieldStateTotalSteps:
				s.TotalSteps = int(v)
			}
		case typ == protowire.Fixed64Type && (num == fieldStateLR || num == fieldStateLoss):
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldStateLR {
				s.LearningRate = math.Float64frombits(v)
			} else {
				s.Loss = math.Float64frombits(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return s, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return s, nil
}

func unmarshalWeight(b []byte) (WeightTensor, error) {
	var w WeightTensor
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return w, protowire.ParseError(n)
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return w, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return w, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldWeightName:
			w.Name = string(v)
		case fieldWeightShape:
			for len(v) > 0 {
				d, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return w, protowire.ParseError(n)
				}
				v = v[n:]
				w.Shape = append(w.Shape, int(d))
			}
		case fieldWeightData:
			if len(v)%8 != 0 {
				return w, errors.Errorf("packed data length %d is not a multiple of 8", len(v))
			}
			for len(v) > 0 {
				d, n := protowire.ConsumeFixed64(v)
				if n < 0 {
					return w, protowire.ParseError(n)
				}
				v = v[n:]
				w.Data = append(w.Data, math.Float64frombits(d))
			}
		}
	}
	return w, nil
}
