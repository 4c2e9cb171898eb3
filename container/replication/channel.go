package replication

import (
	"context"
	"crypto/x509"
	"net"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Reidddddd/ozone/security"
)

// DefaultMaxMessageSize bounds one inbound stream frame. It matches the
// 32 MiB chunk ceiling of the datanode container protocol.
const DefaultMaxMessageSize = 32 * 1024 * 1024

// NewChannel builds the gRPC channel to one peer datanode. The channel is
// lazy: no connection attempt happens until the first call, so the cost of
// construction is configuration checking only.
//
// With security disabled the channel is plaintext. With security enabled
// the profile is validated before any TLS material is read, then turned
// into client credentials; trustAnchor, when non nil, pins the root the
// peer's certificate must chain to. Inbound messages above maxMessageSize
// are rejected by the transport; values <= 0 fall back to
// DefaultMaxMessageSize.
func NewChannel(host string, port int, sec *security.Config, trustAnchor *x509.Certificate, maxMessageSize int) (*grpc.ClientConn, error) {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	creds := insecure.NewCredentials()
	if sec != nil && sec.Enabled {
		if err := sec.Validate(); err != nil {
			return nil, wrapError(KindConfiguration, err, "security profile for peer %s", host)
		}
		tlsConf, err := sec.ClientTLSConfig(trustAnchor)
		if err != nil {
			return nil, wrapError(KindTLSSetup, err, "client TLS material for peer %s", host)
		}
		creds = credentials.NewTLS(tlsConf)
	}
	target := net.JoinHostPort(host, strconv.Itoa(port))
	cc, err := grpc.DialContext(context.Background(), target,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMessageSize)),
	)
	if err != nil {
		return nil, wrapError(KindConfiguration, err, "channel to %s", target)
	}
	return cc, nil
}
