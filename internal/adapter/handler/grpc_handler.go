package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/flower-auction/internal/core/domain"
	"github.com/rl1809/flower-auction/internal/core/service"
)

const AuctionServiceName = "auction.v1.AuctionService"

// AuctionServiceServer is the unary surface exposed over gRPC. Messages are
// the JSON request and summary types, carried by the json codec.
type AuctionServiceServer interface {
	CreateAuctionClock(context.Context, *CreateClockRequest) (*service.AuctionClockSummary, error)
	TransitionClockStatus(context.Context, *TransitionClockRequest) (*service.AuctionClockSummary, error)
	PlaceBid(context.Context, *PlaceBidRequest) (*service.OrderLineSummary, error)
	CorrectOrderLineQuantity(context.Context, *CorrectOrderLineRequest) (*service.OrderLineSummary, error)
}

type GRPCHandler struct {
	clocks    *service.ClockService
	placement *service.PlacementService
	limiter   *BuyerLimiter
}

var _ AuctionServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(clocks *service.ClockService, placement *service.PlacementService, limiter *BuyerLimiter) *GRPCHandler {
	return &GRPCHandler{clocks: clocks, placement: placement, limiter: limiter}
}

func (h *GRPCHandler) CreateAuctionClock(ctx context.Context, req *CreateClockRequest) (*service.AuctionClockSummary, error) {
	if err := validateRequest(domain.EntityClock, req); err != nil {
		return nil, grpcError(err)
	}
	c, err := h.clocks.CreateAuctionClock(ctx, req.input())
	if err != nil {
		return nil, grpcError(err)
	}
	return &c, nil
}

func (h *GRPCHandler) TransitionClockStatus(ctx context.Context, req *TransitionClockRequest) (*service.AuctionClockSummary, error) {
	if err := validateRequest(domain.EntityClock, req); err != nil {
		return nil, grpcError(err)
	}
	c, err := h.clocks.TransitionClockStatus(ctx, req.ClockID, domain.ClockStatus(req.Status), domain.Version(req.ExpectedVersion))
	if err != nil {
		return nil, grpcError(err)
	}
	return &c, nil
}

func (h *GRPCHandler) PlaceBid(ctx context.Context, req *PlaceBidRequest) (*service.OrderLineSummary, error) {
	if err := validateRequest(domain.EntityOrderLine, req); err != nil {
		return nil, grpcError(err)
	}
	if !h.limiter.Allow(req.BuyerID) {
		return nil, status.Error(codes.ResourceExhausted, "too many bids, slow down")
	}
	line, err := h.placement.PlaceBid(ctx, req.input())
	if err != nil {
		return nil, grpcError(err)
	}
	return &line, nil
}

func (h *GRPCHandler) CorrectOrderLineQuantity(ctx context.Context, req *CorrectOrderLineRequest) (*service.OrderLineSummary, error) {
	if err := validateRequest(domain.EntityOrderLine, req); err != nil {
		return nil, grpcError(err)
	}
	line, err := h.placement.CorrectOrderLineQuantity(ctx, req.OrderLineID, req.Quantity, domain.Version(req.ExpectedVersion))
	if err != nil {
		return nil, grpcError(err)
	}
	return &line, nil
}

func RegisterAuctionServiceServer(s grpc.ServiceRegistrar, srv AuctionServiceServer) {
	s.RegisterService(&auctionServiceDesc, srv)
}

var auctionServiceDesc = grpc.ServiceDesc{
	ServiceName: AuctionServiceName,
	HandlerType: (*AuctionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateAuctionClock",
			Handler: unaryHandler("CreateAuctionClock", func(srv AuctionServiceServer, ctx context.Context, req *CreateClockRequest) (any, error) {
				return srv.CreateAuctionClock(ctx, req)
			}),
		},
		{
			MethodName: "TransitionClockStatus",
			Handler: unaryHandler("TransitionClockStatus", func(srv AuctionServiceServer, ctx context.Context, req *TransitionClockRequest) (any, error) {
				return srv.TransitionClockStatus(ctx, req)
			}),
		},
		{
			MethodName: "PlaceBid",
			Handler: unaryHandler("PlaceBid", func(srv AuctionServiceServer, ctx context.Context, req *PlaceBidRequest) (any, error) {
				return srv.PlaceBid(ctx, req)
			}),
		},
		{
			MethodName: "CorrectOrderLineQuantity",
			Handler: unaryHandler("CorrectOrderLineQuantity", func(srv AuctionServiceServer, ctx context.Context, req *CorrectOrderLineRequest) (any, error) {
				return srv.CorrectOrderLineQuantity(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "auction/v1/auction.proto",
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

// unaryHandler adapts a typed method to grpc's untyped handler signature.
func unaryHandler[Req any](method string, call func(AuctionServiceServer, context.Context, *Req) (any, error)) methodHandler {
	fullMethod := "/" + AuctionServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuctionServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuctionServiceServer), ctx, req.(*Req))
		})
	}
}

// UnaryLogger logs every unary call with its status code.
func UnaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("elapsed", time.Since(start)),
		)
		return resp, err
	}
}
