package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/precifix/costing_backend/config"
	"github.com/precifix/costing_backend/models"
	"github.com/precifix/costing_backend/utils"
	"github.com/precifix/costing_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the revision
	// healthy. Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(gin.Recovery())

	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	// Actor identity arrives from the authenticating gateway; this
	// service only records it on history rows.
	r.Use(func(c *gin.Context) {
		ctx := c.Request.Context()
		userId := 0
		if v, err := strconv.Atoi(c.GetHeader("x-user-id")); err == nil {
			userId = v
		}
		userName := c.GetHeader("x-user-name")
		if userName == "" {
			userName = "System"
		}
		ctx = utils.SetUserIdInContext(ctx, userId)
		ctx = utils.SetUserNameInContext(ctx, userName)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "x-user-id", "x-user-name", "x-correlation-id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := r.Group("/api")
	registerInvoiceRoutes(api)
	registerMaterialRoutes(api)
	registerLaborRoutes(api)
	registerVariantRoutes(api)
	registerItemRoutes(api)
	api.GET("/recalc/pending", func(c *gin.Context) {
		count, err := models.CountPendingRecalcTasks(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": count})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"module": "server.go"}).Error("http server: " + err.Error())
		}
	}()

	// Connect dependencies after the listener is up.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	// Background safety net for cascades that failed after confirmation.
	processor := workflow.NewRecalcProcessor(logger)
	procCtx, stopProcessor := context.WithCancel(context.Background())
	go processor.Run(procCtx)

	<-sigCtx.Done()
	stopProcessor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"module": "server.go"}).Error("shutdown: " + err.Error())
	}
}

func respondError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	if err == utils.ErrorRecordNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func registerInvoiceRoutes(api *gin.RouterGroup) {
	api.POST("/invoices", func(c *gin.Context) {
		var input models.NewSupplierInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		invoice, summary, err := workflow.ProcessExtractedInvoice(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"invoice": invoice, "summary": summary})
	})
	api.GET("/invoices", func(c *gin.Context) {
		invoices, err := models.GetAllSupplierInvoices(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoices)
	})
	api.GET("/invoices/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		invoice, err := models.GetSupplierInvoice(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	})
	api.GET("/invoices/:id/proposals", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		proposals, err := models.GetPendingProposals(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, proposals)
	})
	api.POST("/invoices/:id/confirm", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input struct {
			ProposalIds []int `json:"proposal_ids" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		result, err := workflow.ConfirmProposals(ctx, id, input.ProposalIds)
		if err != nil {
			respondError(c, err)
			return
		}
		// Best-effort synchronous cascade. Confirmation already committed;
		// on failure the queued tasks keep the caches eventually consistent.
		recalcPending := false
		variantsUpdated, recalcErr := workflow.RecalculateForMaterials(ctx, result.AppliedMaterialIds)
		if recalcErr != nil {
			recalcPending = true
		} else if err := models.MarkRecalcTasksDoneForMaterials(ctx, result.AppliedMaterialIds); err != nil {
			config.LogError(config.GetLogger(), "server.go", "confirm", "MarkRecalcTasksDoneForMaterials", result.AppliedMaterialIds, err)
		}
		c.JSON(http.StatusOK, gin.H{
			"result":           result,
			"variants_updated": variantsUpdated,
			"recalc_pending":   recalcPending,
		})
	})
}

func registerMaterialRoutes(api *gin.RouterGroup) {
	api.POST("/materials", func(c *gin.Context) {
		var input models.NewRawMaterial
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		material, err := models.CreateRawMaterial(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, material)
	})
	api.GET("/materials", func(c *gin.Context) {
		materials, err := models.GetAllRawMaterials(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, materials)
	})
	api.GET("/materials/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		material, err := models.GetRawMaterial(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, material)
	})
	api.PUT("/materials/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewRawMaterial
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		material, err := models.UpdateRawMaterial(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, material)
	})
	api.PUT("/materials/:id/cost", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input struct {
			UnitCost decimal.Decimal `json:"unit_cost" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		material, err := models.UpdateRawMaterialCost(ctx, id, input.UnitCost)
		if err != nil {
			respondError(c, err)
			return
		}
		recalcPending := false
		if _, recalcErr := workflow.RecalculateForMaterials(ctx, []int{id}); recalcErr != nil {
			recalcPending = true
		} else if err := models.MarkRecalcTasksDoneForMaterials(ctx, []int{id}); err != nil {
			config.LogError(config.GetLogger(), "server.go", "material cost", "MarkRecalcTasksDoneForMaterials", id, err)
		}
		c.JSON(http.StatusOK, gin.H{"material": material, "recalc_pending": recalcPending})
	})
	api.GET("/materials/:id/history", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		histories, err := models.GetCostHistories(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, histories)
	})
	api.PATCH("/materials/:id/active", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		material, err := models.ToggleActiveRawMaterial(c.Request.Context(), id, *input.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, material)
	})
	api.DELETE("/materials/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		material, err := models.DeleteRawMaterial(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, material)
	})
}

func registerLaborRoutes(api *gin.RouterGroup) {
	api.POST("/labor-types", func(c *gin.Context) {
		var input models.NewLaborType
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		labor, err := models.CreateLaborType(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, labor)
	})
	api.GET("/labor-types", func(c *gin.Context) {
		labors, err := models.GetAllLaborTypes(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, labors)
	})
	api.GET("/labor-types/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		labor, err := models.GetLaborType(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, labor)
	})
	api.PUT("/labor-types/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewLaborType
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		labor, err := models.UpdateLaborType(ctx, id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		recalcPending := false
		if _, recalcErr := workflow.RecalculateForLaborTypes(ctx, []int{id}); recalcErr != nil {
			recalcPending = true
		}
		c.JSON(http.StatusOK, gin.H{"labor_type": labor, "recalc_pending": recalcPending})
	})
	api.DELETE("/labor-types/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		labor, err := models.DeleteLaborType(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, labor)
	})
}

func registerVariantRoutes(api *gin.RouterGroup) {
	api.POST("/variants", func(c *gin.Context) {
		var input models.NewProductVariant
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		variant, err := models.CreateProductVariant(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, variant)
	})
	api.GET("/variants", func(c *gin.Context) {
		variants, err := models.GetAllProductVariants(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, variants)
	})
	api.GET("/variants/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		variant, err := models.GetProductVariant(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, variant)
	})
	api.GET("/variants/:id/cost", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		breakdown, err := models.ComputeVariantCost(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, breakdown)
	})
	api.PUT("/variants/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewProductVariant
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		variant, err := models.UpdateProductVariant(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, variant)
	})
	api.DELETE("/variants/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		variant, err := models.DeleteProductVariant(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, variant)
	})
}

func registerItemRoutes(api *gin.RouterGroup) {
	api.POST("/items", func(c *gin.Context) {
		var input models.NewSellableItem
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		item, err := models.CreateSellableItem(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	})
	api.GET("/items", func(c *gin.Context) {
		items, err := models.GetAllSellableItems(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	})
	api.GET("/items/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		item, err := models.GetSellableItem(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})
	api.PUT("/items/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewSellableItem
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		item, err := models.UpdateSellableItem(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})
	api.DELETE("/items/:id", func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		item, err := models.DeleteSellableItem(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})
}
