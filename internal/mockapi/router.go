package mockapi

import (
	"net/http"

	"github.com/go-chi/chi"

	"reuse-console/internal/logging"
	"reuse-console/internal/middleware"
	"reuse-console/internal/model"
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.LoggingMiddleware(logging.Logg))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
		r.Post("/login-google", s.LoginGoogle)
		r.Post("/send-confirm-email", s.SendConfirmEmail)
		r.Get("/verify-email", s.VerifyEmail)

		r.With(middleware.Auth(s.verifier())).Post("/logout", s.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.verifier()))
		r.Get("/accounts/me", s.Me)
		r.Get("/consumers/wallet", s.Wallet)
		r.Get("/consumers/history", s.History)
		r.Post("/payments/link", s.PaymentLink)
		r.Get("/payments/status", s.PaymentStatus)

		r.Get("/package", s.ListPackages)
		r.Post("/package", s.CreatePackage)
		r.Get("/package/{id}", s.GetPackage)
		r.Put("/package/{id}", s.UpdatePackage)
		r.Delete("/package/{id}", s.DeletePackage)
		r.Post("/qr-codes/generate", s.GenerateQR)

		r.With(middleware.RequireRole(model.RoleAdmin)).Get("/admin/accounts", s.ListAccounts)
	})

	r.Get("/pay/{orderCode}", s.PayPage)
	r.Post("/dev/payments/{orderCode}/status", s.SetStatus)
	return r
}
