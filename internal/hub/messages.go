package hub

import (
	"github.com/lzmrd/EthXlmAtomic/internal/model"
)

// Server → client message types.
const (
	TypeActiveOrders   = "active_orders"
	TypeNewOrder       = "new_order"
	TypePriceUpdate    = "price_update"
	TypeOrderFilled    = "order_filled"
	TypeOrderTaken     = "order_taken"
	TypeOrderExpired   = "order_expired"
	TypeSecretRevealed = "secret_revealed"
	TypePong           = "pong"
	TypeError          = "error"
)

// Client → server message types.
const (
	TypeRegister      = "register"
	TypeAuth          = "auth"
	TypeTakeOrder     = "take_order"
	TypePing          = "ping"
	TypeOrderInterest = "order_interest"
)

// Envelope is one server→client message. Exactly the fields relevant to the
// type are populated; everything else is omitted from the wire form.
type Envelope struct {
	Type            string               `json:"type"`
	Order           *model.PublicOrder   `json:"order,omitempty"`
	Orders          []*model.PublicOrder `json:"orders,omitempty"`
	OrderID         string               `json:"orderId,omitempty"`
	CurrentPrice    *model.Amount        `json:"currentPrice,omitempty"`
	TimeRemaining   int64                `json:"timeRemaining,omitempty"`
	FinalPrice      *model.Amount        `json:"finalPrice,omitempty"`
	ResolverAddress string               `json:"resolverAddress,omitempty"`
	Secret          string               `json:"secret,omitempty"`
	Instructions    *ClaimInstructions   `json:"instructions,omitempty"`
	Message         string               `json:"message,omitempty"`
}

// ClaimInstructions tells resolvers how to redeem both escrows once the
// secret is out.
type ClaimInstructions struct {
	OrderID           string `json:"orderId"`
	SrcChain          string `json:"srcChain"`
	SrcEscrowContract string `json:"srcEscrowContract"`
	SrcEscrowID       string `json:"srcEscrowId"`
	DstChain          string `json:"dstChain"`
	DstEscrowAccount  string `json:"dstEscrowAccount"`
	Note              string `json:"note,omitempty"`
}

// Inbound is one client→server message.
type Inbound struct {
	Type            string `json:"type"`
	ResolverID      string `json:"resolverId,omitempty"`
	Address         string `json:"address,omitempty"`
	OrderID         string `json:"orderId,omitempty"`
	ResolverAddress string `json:"resolverAddress,omitempty"`
}

// ActiveOrders is the snapshot sent on register.
func ActiveOrders(orders []*model.PublicOrder) Envelope {
	return Envelope{Type: TypeActiveOrders, Orders: orders}
}

// NewOrder announces an order entering its auction.
func NewOrder(order *model.PublicOrder) Envelope {
	return Envelope{Type: TypeNewOrder, Order: order}
}

// PriceUpdate publishes a decayed auction price. remaining is whole seconds
// until the auction window closes.
func PriceUpdate(orderID string, price model.Amount, remaining int64) Envelope {
	return Envelope{Type: TypePriceUpdate, OrderID: orderID, CurrentPrice: &price, TimeRemaining: remaining}
}

// OrderFilled announces the frozen price after source escrow detection.
func OrderFilled(orderID string, finalPrice model.Amount) Envelope {
	return Envelope{Type: TypeOrderFilled, OrderID: orderID, FinalPrice: &finalPrice}
}

// OrderTaken announces an explicit take by a resolver.
func OrderTaken(orderID, resolverAddress string) Envelope {
	return Envelope{Type: TypeOrderTaken, OrderID: orderID, ResolverAddress: resolverAddress}
}

// OrderExpired announces an auction that ran out without a taker.
func OrderExpired(orderID string) Envelope {
	return Envelope{Type: TypeOrderExpired, OrderID: orderID}
}

// SecretRevealed carries the plaintext secret and claim instructions. Sent at
// most once per order, ever.
func SecretRevealed(orderID, plaintext string, instructions *ClaimInstructions) Envelope {
	return Envelope{Type: TypeSecretRevealed, OrderID: orderID, Secret: plaintext, Instructions: instructions}
}

// Pong answers a ping.
func Pong() Envelope {
	return Envelope{Type: TypePong}
}

// ErrorMessage reports a per-session failure such as a rejected take.
func ErrorMessage(msg string) Envelope {
	return Envelope{Type: TypeError, Message: msg}
}
