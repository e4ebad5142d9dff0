package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"idprivacy/controllers"
	"idprivacy/routes"
	"idprivacy/store"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: "Runs the HTTP API: /api/identity for accounts, registration, proofs and UserData operations,\n" +
		"/api/operations for raw user operations, /api/paymaster for the sponsor deposit and\n" +
		"/api/simulation for simulated users and their wallets.\n" +
		"Contract addresses are read from the store; see 'idprivacy addresses'.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := openEnv(ctx, true)
		if err != nil {
			return err
		}
		defer e.Close()
		addr := e.settings.ListenAddr
		if listenAddr != "" {
			addr = listenAddr
		}
		return serve(ctx, addr, newRouter(ctx, e))
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(ctx context.Context, e *env) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	registry := e.registry(ctx)
	proofs := e.proofs()
	ops := e.operations(ctx, registry, proofs)

	routes.SetupRouter(r)
	routes.SetupIdentityRouter(r, controllers.NewIdentityController(e.factory(ctx), registry, proofs, ops))
	userOps := controllers.NewUserOpController(e.relay, e.chain, e.settings.EntryPoint, e.tx)
	userOps.Policy = e.settings.Poll
	routes.SetupUserOpRouter(r, userOps)
	routes.SetupDepositRouter(r, controllers.NewDepositController(e.address(ctx, store.VerifyingPaymaster), e.chain, e.tx))
	routes.SetupSimulationRouter(r, controllers.NewSimulationController(e.simulator(ctx, registry, ops)))
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("HTTP request", "method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errc := make(chan error, 1)
	go func() {
		log.Info("HTTP server started", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("HTTP server stopping")
	return srv.Shutdown(shutdown)
}
