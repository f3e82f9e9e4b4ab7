package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
)

func TestToStatus(t *testing.T) {
	svc := NewStorefrontService(Deps{}, log.WithField("test", "status"))

	cases := []struct {
		err  error
		want codes.Code
	}{
		{err: fmt.Errorf("update order 1: %w", domain.ErrOrderNotFound), want: codes.NotFound},
		{err: domain.ErrRecordNotFound, want: codes.NotFound},
		{err: domain.ErrInvalidOrderStatus, want: codes.InvalidArgument},
		{err: domain.ErrCartItemIDRequired, want: codes.InvalidArgument},
		{err: domain.ErrAddressRequired, want: codes.InvalidArgument},
		{err: domain.ErrUnknownSection, want: codes.InvalidArgument},
		{err: fmt.Errorf("update cart: %w", domain.ErrRevisionConflict), want: codes.Aborted},
		{err: domain.ErrOrderFinalized, want: codes.FailedPrecondition},
		{err: domain.ErrCartEmpty, want: codes.FailedPrecondition},
		{err: fmt.Errorf("%w: HTTP error! status: 502", domain.ErrFetchFailed), want: codes.Unavailable},
		{err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{err: errors.New("disk on fire"), want: codes.Internal},
		{err: status.Error(codes.Unavailable, "down"), want: codes.Unavailable},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			require.Equal(t, tc.want, status.Code(svc.toStatus("/test", tc.err)))
		})
	}
	require.NoError(t, svc.toStatus("/test", nil))
}

func TestStructRoundTrip(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"id": float64(1792074600000), "status": "shipped"})
	require.NoError(t, err)

	var req orderRequest
	require.NoError(t, decodeStruct(in, &req))
	require.Equal(t, orderRequest{ID: 1792074600000, Status: "shipped"}, req)

	out, err := encodeStruct(newCartView(nil))
	require.NoError(t, err)
	require.Equal(t, []any{}, out.AsMap()["items"])
	require.Equal(t, float64(0), out.AsMap()["count"])
}

func TestServiceDescCoversMethods(t *testing.T) {
	names := make(map[string]bool, len(serviceDesc.Methods))
	for _, m := range serviceDesc.Methods {
		require.False(t, names[m.MethodName], "duplicate method %s", m.MethodName)
		names[m.MethodName] = true
	}
	require.Len(t, names, 28)
	require.Equal(t, "/digidine.v1.StorefrontService/Checkout", FullMethod("Checkout"))
}
