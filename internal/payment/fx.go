package payment

import (
	"github.com/gymstack/gymstack/internal/payment/adapters/hosted"
	"github.com/gymstack/gymstack/internal/payment/callback"
	"github.com/gymstack/gymstack/internal/payment/checkout"
	paymentdomain "github.com/gymstack/gymstack/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(hosted.New),
	fx.Provide(func(c *hosted.Client) paymentdomain.Verifier { return c }),
	fx.Provide(func(c *hosted.Client) paymentdomain.InvoiceIssuer { return c }),
	fx.Provide(callback.NewGateway),
	fx.Provide(func(g *callback.Gateway) paymentdomain.CallbackGateway { return g }),
	fx.Provide(checkout.NewService),
)
