package binder

import (
	"context"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

const (
	serviceName    = "binder.Binder"
	transactMethod = "/binder.Binder/Transact"
)

// Envelope keys.
const (
	keyObject     = "object"
	keyInstance   = "instance"
	keyToken      = "token"
	keyCode       = "code"
	keyData       = "data"
	keyHandles    = "handles"
	keyAddress    = "address"
	keyDescriptor = "descriptor"
)

// Ref addresses one published object.
//
// An empty Instance matches any incarnation of the endpoint; it is used for
// well-known objects such as the registry, whose clients know only the
// address.
type Ref struct {
	Address    string
	Instance   string
	Object     string
	Descriptor string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s@%s/%s(%s)", r.Object, r.Address, r.Instance, r.Descriptor)
}

func (r Ref) value() *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		keyAddress:    structpb.NewStringValue(r.Address),
		keyInstance:   structpb.NewStringValue(r.Instance),
		keyObject:     structpb.NewStringValue(r.Object),
		keyDescriptor: structpb.NewStringValue(r.Descriptor),
	}})
}

func refFromValue(v *structpb.Value) (Ref, error) {
	s := v.GetStructValue()
	if s == nil {
		return Ref{}, fmt.Errorf("%w: handle reference is not a struct", remote.ErrFieldType)
	}
	var (
		r   Ref
		err error
	)
	if r.Address, err = stringField(s, keyAddress); err != nil {
		return Ref{}, err
	}
	if r.Instance, err = stringField(s, keyInstance); err != nil {
		return Ref{}, err
	}
	if r.Object, err = stringField(s, keyObject); err != nil {
		return Ref{}, err
	}
	if r.Descriptor, err = stringField(s, keyDescriptor); err != nil {
		return Ref{}, err
	}
	return r, nil
}

// referencer is implemented by handles that can be written to the wire.
type referencer interface {
	Ref() Ref
}

func stringField(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", remote.ErrMissingField, key)
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", remote.ErrFieldType, key)
	}
	return str.StringValue, nil
}

func codeField(s *structpb.Struct) (uint32, error) {
	v, ok := s.GetFields()[keyCode]
	if !ok {
		return 0, fmt.Errorf("%w: %s", remote.ErrMissingField, keyCode)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", remote.ErrFieldType, keyCode)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || f < 0 || f > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s=%v", remote.ErrFieldType, keyCode, f)
	}
	return uint32(f), nil
}

// encodeParcel flattens a parcel into its data struct and handle list.
func encodeParcel(p *remote.Parcel) (*structpb.Value, *structpb.Value, error) {
	hs := p.Handles()
	refs := make([]*structpb.Value, 0, len(hs))
	for _, h := range hs {
		if h == nil {
			refs = append(refs, structpb.NewNullValue())
			continue
		}
		r, ok := h.(referencer)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %T", remote.ErrNotTransferable, h)
		}
		refs = append(refs, r.Ref().value())
	}
	return structpb.NewStructValue(p.Wire()), structpb.NewListValue(&structpb.ListValue{Values: refs}), nil
}

// resolveFunc turns a wire reference into a handle usable by the receiver.
// A reference that cannot be reached resolves to nil.
type resolveFunc func(ctx context.Context, r Ref) remote.Handle

// decodeParcel rebuilds a parcel from an envelope carrying data and handles.
func decodeParcel(ctx context.Context, env *structpb.Struct, resolve resolveFunc) (*remote.Parcel, error) {
	fields := env.GetFields()

	var data *structpb.Struct
	if v, ok := fields[keyData]; ok {
		if data = v.GetStructValue(); data == nil {
			return nil, fmt.Errorf("%w: %s is not a struct", remote.ErrFieldType, keyData)
		}
	}

	var handles []remote.Handle
	if v, ok := fields[keyHandles]; ok {
		list := v.GetListValue()
		if list == nil {
			return nil, fmt.Errorf("%w: %s is not a list", remote.ErrFieldType, keyHandles)
		}
		handles = make([]remote.Handle, 0, len(list.GetValues()))
		for _, item := range list.GetValues() {
			if _, null := item.GetKind().(*structpb.Value_NullValue); null {
				handles = append(handles, nil)
				continue
			}
			r, err := refFromValue(item)
			if err != nil {
				return nil, err
			}
			handles = append(handles, resolve(ctx, r))
		}
	}

	return remote.ParcelFromWire(data, handles), nil
}

func encodeRequest(target Ref, code uint32, data *remote.Parcel) (*structpb.Struct, error) {
	d, h, err := encodeParcel(data)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		keyObject:   structpb.NewStringValue(target.Object),
		keyInstance: structpb.NewStringValue(target.Instance),
		keyToken:    structpb.NewStringValue(target.Descriptor),
		keyCode:     structpb.NewNumberValue(float64(code)),
		keyData:     d,
		keyHandles:  h,
	}}, nil
}

func encodeReply(reply *remote.Parcel) (*structpb.Struct, error) {
	d, h, err := encodeParcel(reply)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		keyData:    d,
		keyHandles: h,
	}}, nil
}

// transactServer is the handler type of the binder service.
type transactServer interface {
	transact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func transactHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(transactServer).transact(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: transactMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(transactServer).transact(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc describes the binder service without generated code: one
// unary method whose request and reply are google.protobuf.Struct.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*transactServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Transact",
			Handler:    transactHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "binder.proto",
}
