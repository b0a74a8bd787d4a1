package remote

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// handleIndexKey marks a struct value as a reference into the handle table.
const handleIndexKey = "$handle"

// Parcel is the payload of one transaction: named scalar fields plus an
// out-of-band table of handles referenced from those fields.
//
// Writers chain; readers validate. The zero value is ready to use.
type Parcel struct {
	fields  map[string]*structpb.Value
	handles []Handle
}

// NewParcel returns an empty parcel.
func NewParcel() *Parcel {
	return &Parcel{fields: make(map[string]*structpb.Value)}
}

// ParcelFromWire rebuilds a parcel from its wire struct and the handles the
// transport already resolved, in table order.
func ParcelFromWire(s *structpb.Struct, handles []Handle) *Parcel {
	p := NewParcel()
	for k, v := range s.GetFields() {
		p.fields[k] = v
	}
	p.handles = append(p.handles, handles...)
	return p
}

// Wire returns the scalar part of the parcel as a protobuf struct.
func (p *Parcel) Wire() *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value)}
	if p == nil {
		return s
	}
	for k, v := range p.fields {
		s.Fields[k] = v
	}
	return s
}

// Handles returns the handle table in the order handles were written.
func (p *Parcel) Handles() []Handle {
	if p == nil {
		return nil
	}
	return p.handles
}

// Has reports whether key is present.
func (p *Parcel) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p.fields[key]
	return ok
}

func (p *Parcel) put(key string, v *structpb.Value) *Parcel {
	if p.fields == nil {
		p.fields = make(map[string]*structpb.Value)
	}
	p.fields[key] = v
	return p
}

// WriteInt32 stores v under key.
func (p *Parcel) WriteInt32(key string, v int32) *Parcel {
	return p.put(key, structpb.NewNumberValue(float64(v)))
}

// WriteUint32 stores v under key.
func (p *Parcel) WriteUint32(key string, v uint32) *Parcel {
	return p.put(key, structpb.NewNumberValue(float64(v)))
}

// WriteBool stores v under key.
func (p *Parcel) WriteBool(key string, v bool) *Parcel {
	return p.put(key, structpb.NewBoolValue(v))
}

// WriteString stores v under key.
func (p *Parcel) WriteString(key string, v string) *Parcel {
	return p.put(key, structpb.NewStringValue(v))
}

// WriteHandle stores a reference to h under key. A nil handle is written as
// an explicit null and reads back as nil.
func (p *Parcel) WriteHandle(key string, h Handle) *Parcel {
	if h == nil {
		return p.put(key, structpb.NewNullValue())
	}
	ref := &structpb.Struct{Fields: map[string]*structpb.Value{
		handleIndexKey: structpb.NewNumberValue(float64(len(p.handles))),
	}}
	p.handles = append(p.handles, h)
	return p.put(key, structpb.NewStructValue(ref))
}

func (p *Parcel) get(key string) (*structpb.Value, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	v, ok := p.fields[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return v, nil
}

func (p *Parcel) number(key string, lo, hi float64) (float64, error) {
	v, err := p.get(key)
	if err != nil {
		return 0, err
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", ErrFieldType, key)
	}
	f := n.NumberValue
	if math.IsNaN(f) || f != math.Trunc(f) || f < lo || f > hi {
		return 0, fmt.Errorf("%w: %s=%v out of range", ErrFieldType, key, f)
	}
	return f, nil
}

// ReadInt32 returns the int32 stored under key.
func (p *Parcel) ReadInt32(key string) (int32, error) {
	f, err := p.number(key, math.MinInt32, math.MaxInt32)
	if err != nil {
		return 0, err
	}
	return int32(f), nil
}

// ReadUint32 returns the uint32 stored under key.
func (p *Parcel) ReadUint32(key string) (uint32, error) {
	f, err := p.number(key, 0, math.MaxUint32)
	if err != nil {
		return 0, err
	}
	return uint32(f), nil
}

// ReadBool returns the bool stored under key.
func (p *Parcel) ReadBool(key string) (bool, error) {
	v, err := p.get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, fmt.Errorf("%w: %s is not a bool", ErrFieldType, key)
	}
	return b.BoolValue, nil
}

// ReadString returns the string stored under key.
func (p *Parcel) ReadString(key string) (string, error) {
	v, err := p.get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrFieldType, key)
	}
	return s.StringValue, nil
}

// ReadHandle returns the handle stored under key, or nil when an explicit
// null was written.
func (p *Parcel) ReadHandle(key string) (Handle, error) {
	v, err := p.get(key)
	if err != nil {
		return nil, err
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StructValue:
		idx, ok := kind.StructValue.GetFields()[handleIndexKey].GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a handle", ErrFieldType, key)
		}
		i := idx.NumberValue
		if i != math.Trunc(i) || i < 0 || int(i) >= len(p.handles) {
			return nil, fmt.Errorf("%w: %s references handle %v of %d", ErrFieldType, key, i, len(p.handles))
		}
		return p.handles[int(i)], nil
	default:
		return nil, fmt.Errorf("%w: %s is not a handle", ErrFieldType, key)
	}
}
