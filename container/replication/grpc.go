package replication

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// gRPC plumbing for the intra-datanode download service, written by hand
// in the shape protoc-gen-go-grpc would emit. The service and method names
// mirror the datanode container protocol so nodes speaking the original
// protocol interoperate.

const (
	serviceName        = "hadoop.hdds.datanode.IntraDatanodeProtocolService"
	downloadFullMethod = "/hadoop.hdds.datanode.IntraDatanodeProtocolService/download"
)

// IntraDatanodeClient is the client API of the intra-datanode service.
type IntraDatanodeClient interface {
	// Download opens a server stream of replica chunks for one container.
	Download(ctx context.Context, in *CopyContainerRequest, opts ...grpc.CallOption) (IntraDatanode_DownloadClient, error)
}

type intraDatanodeClient struct {
	cc grpc.ClientConnInterface
}

// NewIntraDatanodeClient returns a stub bound to cc.
func NewIntraDatanodeClient(cc grpc.ClientConnInterface) IntraDatanodeClient {
	return &intraDatanodeClient{cc: cc}
}

func (c *intraDatanodeClient) Download(ctx context.Context, in *CopyContainerRequest, opts ...grpc.CallOption) (IntraDatanode_DownloadClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &IntraDatanode_ServiceDesc.Streams[0], downloadFullMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &intraDatanodeDownloadClient{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// IntraDatanode_DownloadClient is the client view of one download stream.
type IntraDatanode_DownloadClient interface {
	Recv() (*CopyContainerResponse, error)
	grpc.ClientStream
}

type intraDatanodeDownloadClient struct {
	grpc.ClientStream
}

func (x *intraDatanodeDownloadClient) Recv() (*CopyContainerResponse, error) {
	m := new(CopyContainerResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// IntraDatanodeServer is the server API of the intra-datanode service.
type IntraDatanodeServer interface {
	// Download streams the packed bytes of the requested container.
	Download(*CopyContainerRequest, IntraDatanode_DownloadServer) error
}

// UnimplementedIntraDatanodeServer fails every method with
// codes.Unimplemented. Embed it to keep server implementations forward
// compatible.
type UnimplementedIntraDatanodeServer struct{}

func (UnimplementedIntraDatanodeServer) Download(*CopyContainerRequest, IntraDatanode_DownloadServer) error {
	return status.Error(codes.Unimplemented, "method download not implemented")
}

// RegisterIntraDatanodeServer registers srv on s.
func RegisterIntraDatanodeServer(s grpc.ServiceRegistrar, srv IntraDatanodeServer) {
	s.RegisterService(&IntraDatanode_ServiceDesc, srv)
}

func _IntraDatanode_Download_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(CopyContainerRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(IntraDatanodeServer).Download(m, &intraDatanodeDownloadServer{ServerStream: stream})
}

// IntraDatanode_DownloadServer is the server view of one download stream.
type IntraDatanode_DownloadServer interface {
	Send(*CopyContainerResponse) error
	grpc.ServerStream
}

type intraDatanodeDownloadServer struct {
	grpc.ServerStream
}

func (x *intraDatanodeDownloadServer) Send(m *CopyContainerResponse) error {
	return x.ServerStream.SendMsg(m)
}

// IntraDatanode_ServiceDesc is the grpc.ServiceDesc for the
// intra-datanode service.
var IntraDatanode_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*IntraDatanodeServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "download",
			Handler:       _IntraDatanode_Download_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "DatanodeContainerProtocol.proto",
}
