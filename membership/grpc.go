package membership

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	grpcx "github.com/kbukum/infermesh/grpc"
	"github.com/kbukum/infermesh/grpc/client"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/peer"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "infermesh.v1.Membership"

// AnnounceMethod is the full method name of Announce.
const AnnounceMethod = "/" + ServiceName + "/Announce"

// MembershipServer is the server API for infermesh.v1.Membership. The
// request carries the announcer's address; the response lists every known
// peer as string values.
type MembershipServer interface {
	Announce(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error)
}

// ServiceDesc describes infermesh.v1.Membership. Messages are well-known
// protobuf types, so no generated code is needed.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MembershipServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Announce", Handler: announceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "infermesh/v1/membership.proto",
}

func announceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MembershipServer).Announce(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AnnounceMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MembershipServer).Announce(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Register exposes svc on r.
func Register(r grpc.ServiceRegistrar, svc *Service) {
	r.RegisterService(&ServiceDesc, &grpcServer{svc: svc})
}

type grpcServer struct {
	svc *Service
}

func (g *grpcServer) Announce(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	peers, err := g.svc.Announce(ctx, peer.Address(req.GetValue()))
	if err != nil {
		return nil, err
	}
	return toListValue(peers), nil
}

func toListValue(peers []peer.Address) *structpb.ListValue {
	values := make([]*structpb.Value, 0, len(peers))
	for _, p := range peers {
		values = append(values, structpb.NewStringValue(p.String()))
	}
	return &structpb.ListValue{Values: values}
}

func fromListValue(list *structpb.ListValue) []peer.Address {
	out := make([]peer.Address, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		if s := v.GetStringValue(); s != "" {
			out = append(out, peer.Address(s))
		}
	}
	return out
}

// Announcer sends an announcement of self to a seed and returns the seed's
// view of the mesh.
type Announcer interface {
	Announce(ctx context.Context, seed, self peer.Address) ([]peer.Address, error)
}

// Client announces over gRPC, opening one short-lived connection per call.
type Client struct {
	cfg      grpcx.Config
	log      *logger.Logger
	dialOpts []grpc.DialOption
}

var _ Announcer = (*Client)(nil)

// NewClient creates a client; extra dial options are passed to every dial.
func NewClient(cfg grpcx.Config, log *logger.Logger, opts ...grpc.DialOption) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{cfg: cfg, log: log, dialOpts: opts}
}

// Announce calls seed's Announce with self. Errors are AppErrors mapped
// from the gRPC status.
func (c *Client) Announce(ctx context.Context, seed, self peer.Address) ([]peer.Address, error) {
	conn, err := client.Dial(client.Target(seed.String()), c.cfg, c.log, c.dialOpts...)
	if err != nil {
		return nil, grpcx.FromGRPC(err, seed.String())
	}
	defer conn.Close()

	out := new(structpb.ListValue)
	if err := conn.Invoke(ctx, AnnounceMethod, wrapperspb.String(self.String()), out); err != nil {
		return nil, grpcx.FromGRPC(err, seed.String())
	}
	return fromListValue(out), nil
}
