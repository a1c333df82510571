package logsink

// The LogSink service is registered with a hand-written grpc.ServiceDesc
// instead of generated stubs: the only RPC is a server stream of CBOR
// entries, and grpc-go's RegisterService/NewStream APIs take any codec.

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

const (
	serviceName     = "oakbridge.logsink.LogSink"
	subscribeMethod = "/" + serviceName + "/Subscribe"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*subscriber)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "oakbridge/logsink",
}

// subscriber is the service's handler type.
type subscriber interface {
	Subscribe(*StreamRequest, grpc.ServerStream) error
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	var req StreamRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	return srv.(subscriber).Subscribe(&req, stream)
}

// sinkServer serves the Subscribe stream from a publisher.
type sinkServer struct {
	publisher *Publisher
}

func (s *sinkServer) Subscribe(req *StreamRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	client := s.publisher.addClient(uuid.NewString(), req)
	defer s.publisher.removeClient(client.id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return nil
		case e := <-client.entryCh:
			if err := stream.SendMsg(e); err != nil {
				log.Printf("[LogSink] send to %s failed: %v", client.id, err)
				return err
			}
		}
	}
}

// EntryStream is the client side of a Subscribe call.
type EntryStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next entry. It returns io.EOF when the server closes
// the stream.
func (s *EntryStream) Recv() (*Entry, error) {
	var e Entry
	if err := s.stream.RecvMsg(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Subscribe opens the entry stream on an established connection. The viewer
// tool and the tests use this; the production viewer is external.
func Subscribe(ctx context.Context, conn *grpc.ClientConn, req *StreamRequest) (*EntryStream, error) {
	desc := &grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}
	stream, err := conn.NewStream(ctx, desc, subscribeMethod, grpc.ForceCodec(Codec{}))
	if err != nil {
		return nil, fmt.Errorf("open subscribe stream: %w", err)
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("send stream request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EntryStream{stream: stream}, nil
}
