package grpcsvc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "digidine.v1.StorefrontService"

// FullMethod возвращает путь метода для grpc.ClientConn.Invoke.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Запросы и ответы — google.protobuf.Struct, поэтому описание сервиса задано вручную.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetCart", (*StorefrontService).GetCart),
		unary("AddCartItem", (*StorefrontService).AddCartItem),
		unary("RemoveCartItem", (*StorefrontService).RemoveCartItem),
		unary("UpdateCartQuantity", (*StorefrontService).UpdateCartQuantity),
		unary("ClearCart", (*StorefrontService).ClearCart),
		unary("Checkout", (*StorefrontService).Checkout),
		unary("ListOrders", (*StorefrontService).ListOrders),
		unary("ListActiveOrders", (*StorefrontService).ListActiveOrders),
		unary("UpdateOrderStatus", (*StorefrontService).UpdateOrderStatus),
		unary("AdvanceOrder", (*StorefrontService).AdvanceOrder),
		unary("ListAddresses", (*StorefrontService).ListAddresses),
		unary("AddAddress", (*StorefrontService).AddAddress),
		unary("RemoveAddress", (*StorefrontService).RemoveAddress),
		unary("ListSavedRestaurants", (*StorefrontService).ListSavedRestaurants),
		unary("SaveRestaurant", (*StorefrontService).SaveRestaurant),
		unary("RemoveRestaurant", (*StorefrontService).RemoveRestaurant),
		unary("ListSavedDishes", (*StorefrontService).ListSavedDishes),
		unary("SaveDish", (*StorefrontService).SaveDish),
		unary("RemoveDish", (*StorefrontService).RemoveDish),
		unary("ToggleMenu", (*StorefrontService).ToggleMenu),
		unary("ShowSection", (*StorefrontService).ShowSection),
		unary("Logout", (*StorefrontService).Logout),
		unary("AddNewAddress", (*StorefrontService).AddNewAddress),
		unary("Badges", (*StorefrontService).Badges),
		unary("Toasts", (*StorefrontService).Toasts),
		unary("FetchRemote", (*StorefrontService).FetchRemote),
		unary("SaveRemote", (*StorefrontService).SaveRemote),
		unary("UpdateRemote", (*StorefrontService).UpdateRemote),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "digidine/v1/storefront.proto",
}

// unary связывает метод сервиса с типизированным запросом и ответом, которые
// передаются по сети как Struct.
func unary[Req, Resp any](name string, fn func(*StorefrontService, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(*StorefrontService)

			call := func(ctx context.Context, raw any) (any, error) {
				var req Req
				if err := decodeStruct(raw.(*structpb.Struct), &req); err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "decode %s request: %v", name, err)
				}
				resp, err := fn(svc, ctx, req)
				if err != nil {
					return nil, svc.toStatus(fullMethod, err)
				}
				out, err := encodeStruct(resp)
				if err != nil {
					return nil, svc.toStatus(fullMethod, err)
				}
				return out, nil
			}

			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, call)
		},
	}
}

func decodeStruct(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return structpb.NewStruct(fields)
}

// Client вызывает StorefrontService через любое gRPC-соединение.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient создаёт клиента поверх conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Call вызывает method с запросом req и возвращает ответ как map.
func (c *Client) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
