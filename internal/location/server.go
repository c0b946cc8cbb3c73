package location

import (
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/raksha/internal/sos/domain"
)

// Server implements the LocationServer interface. It is a bulk ingest
// path for device fleets that report coordinates over gRPC instead of
// the browser socket; updates land in the same directory the dispatcher
// reads from.
type Server struct {
	users  domain.Directory
	logger *zap.Logger
}

// NewServer constructs a server.
func NewServer(users domain.Directory, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{users: users, logger: logger}
}

// StreamLocation ingests user locations and applies them to the directory.
func (s *Server) StreamLocation(stream Location_StreamLocationServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}
		userID, err := uuid.Parse(msg.UserId)
		if err != nil {
			continue
		}
		point := domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng}
		if err := s.users.UpdateLocation(stream.Context(), userID, point); err != nil {
			s.logger.Warn("stream location update failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
}
