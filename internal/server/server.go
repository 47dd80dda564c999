package server

import (
	"context"
	"net/http"
	"time"

	"github.com/farellandr/cashback/internal/metrics"
	"github.com/farellandr/cashback/internal/middleware"
	"github.com/farellandr/cashback/internal/models"
	"github.com/farellandr/cashback/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(validation.JSONFieldName)
	}
}

// NewRouter builds the gin engine with every route of the API.
func NewRouter(app *App) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.Recovery(app.Log),
		middleware.RequestLogger(app.Log),
		metrics.Middleware(),
		middleware.RequestTimeout(app.Config.RequestTimeout),
	)
	r.Static("/uploads", app.Config.UploadDir)
	setupRoutes(r, app)
	return r
}

func setupRoutes(r *gin.Engine, app *App) {
	h := app.Handler
	authn := middleware.JWTAuthMiddleware(app.Auth)
	admin := middleware.RequireRole(models.RoleAdmin)

	r.GET("/health", h.Health)
	r.GET("/health/detailed", middleware.APIKey(app.Config.AdminAPIKey), h.HealthDetailed)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", h.Register)
		authRoutes.POST("/login", h.Login)
		authRoutes.POST("/refresh", h.Refresh)
		authRoutes.POST("/logout", h.Logout)
		authRoutes.POST("/revoke-all", authn, h.RevokeAll)
		authRoutes.GET("/me", authn, h.Me)
	}

	coupons := api.Group("/coupons", authn)
	{
		coupons.GET("", h.ListCoupons)
		coupons.GET("/:id", h.GetCoupon)
		coupons.GET("/:id/qr", h.CouponQR)
		coupons.POST("/:id/redeem", h.RedeemCoupon)
		coupons.POST("", admin, h.CreateCoupon)
		coupons.PUT("/:id", admin, h.UpdateCoupon)
		coupons.DELETE("/:id", admin, h.DeleteCoupon)
	}

	stores := api.Group("/stores", authn)
	{
		stores.GET("", h.ListStores)
		stores.GET("/:id", h.GetStore)
		stores.GET("/:id/offers", h.ListStoreOffers)
		stores.POST("/:id/click", h.TrackClick)
		stores.POST("", admin, h.CreateStore)
		stores.PUT("/:id", admin, h.UpdateStore)
		stores.DELETE("/:id", admin, h.DeleteStore)
		stores.POST("/:id/logo", admin, h.UploadStoreLogo)
	}

	offers := api.Group("/offers", authn, admin)
	{
		offers.POST("", h.CreateOffer)
		offers.PUT("/:id", h.UpdateOffer)
		offers.DELETE("/:id", h.DeleteOffer)
	}

	api.GET("/categories", authn, h.ListCategories)

	// Partner callbacks authenticate with their own credentials.
	api.POST("/cashback/postback", h.Postback)
	api.POST("/cashback/withdrawals/callback", middleware.XenditCallbackMiddleware(app.Config.Xendit.CallbackToken), h.PayoutWebhook)

	cashback := api.Group("/cashback", authn)
	{
		cashback.GET("", h.GetCashback)
		cashback.GET("/balance", h.GetBalance)
		cashback.POST("/withdraw", h.Withdraw)
		cashback.GET("/withdrawals", h.ListWithdrawals)
	}

	api.GET("/users/me/redemptions", authn, h.MyRedemptions)

	adminRoutes := api.Group("/admin", authn, admin)
	{
		adminRoutes.POST("/cashback/transactions", h.CreateTransaction)
		adminRoutes.POST("/cashback/transactions/:id/reject", h.RejectTransaction)
		adminRoutes.POST("/withdrawals/:id/settle", h.SettleWithdrawal)
		adminRoutes.POST("/users/:id/revoke-tokens", h.RevokeUserTokens)
		adminRoutes.GET("/users/:id/balance-check", h.BalanceCheck)
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	return <-errCh
}

