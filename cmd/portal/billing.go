package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/ManuelReschke/TalentDesk/app/controllers"
	"github.com/ManuelReschke/TalentDesk/app/repository"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/billing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/cache"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/constants"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/database"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/documents"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/env"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/invoicing"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/jobqueue"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/mail"
	"github.com/ManuelReschke/TalentDesk/internal/pkg/notify"
)

// localDocumentsDir is served statically when documents are kept on disk.
var localDocumentsDir string

// jobManager runs background billing jobs and the overdue sweep.
var jobManager *jobqueue.Manager

// setupBilling builds the billing service and its optional integrations and
// hands them to the controllers.
func setupBilling(basePath string) error {
	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	cfg, err := billing.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	docCfg, err := documents.LoadConfig()
	if err != nil {
		return err
	}
	var objects documents.ObjectStore
	if docCfg.IsEnabled() {
		s3Store, err := documents.NewS3Store(context.Background(), docCfg)
		if err != nil {
			return fmt.Errorf("document storage: %w", err)
		}
		objects = s3Store
	} else {
		dir := docCfg.LocalDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(basePath, dir)
		}
		local, err := documents.NewLocalStore(dir, constants.DocumentsRoute)
		if err != nil {
			return err
		}
		localDocumentsDir = dir
		objects = local
		log.Printf("documents are stored locally in %s", dir)
	}
	docStore := documents.NewStore(objects, repos.Document, docCfg.URLExpiry)

	locker := cache.NewRedisLocker(cache.GetClient())
	service := billing.NewServiceFromDB(db, docStore, locker, cfg)

	deps := controllers.BillingDeps{
		Service:   service,
		Users:     repos.User,
		Documents: docStore,
	}

	queue := jobqueue.NewQueue(cache.GetClient(), env.GetEnvAsInt("BILLING_JOB_WORKERS", 3))
	var mirror jobqueue.InvoiceMirror
	var notifier jobqueue.Notifier

	// external invoicing is optional
	if provider, err := invoicing.NewStripeProviderFromEnv(); err == nil {
		bridge := invoicing.NewBridge(provider, invoicing.NewRepository(db), repos.User, service.Ledger, locker, cfg)
		deps.Bridge = bridge
		mirror = bridge
		if hook, err := invoicing.NewStripeWebhookFromEnv(bridge, service); err == nil {
			deps.Webhook = hook
		} else {
			log.Printf("stripe webhook disabled: %v", err)
		}
	} else {
		log.Printf("external invoicing disabled: %v", err)
	}

	// bill notifications are optional
	if mailer, err := mail.NewSMTPMailerFromEnv(); err == nil {
		dispatcher, err := notify.NewDispatcher(mailer, repos.User, service.Ledger, cfg.PublicDomain)
		if err != nil {
			return err
		}
		deps.Notifier = dispatcher
		notifier = dispatcher
	} else {
		log.Printf("bill notifications disabled: %v", err)
	}

	jobqueue.RegisterBillingHandlers(queue, service.Ledger, notifier, mirror)
	deps.Jobs = queue
	sweep := time.Duration(env.GetEnvAsInt("BILLING_OVERDUE_SWEEP_MINUTES", 60)) * time.Minute
	jobManager = jobqueue.NewManager(queue, service.Ledger, sweep)
	jobManager.Start()

	controllers.InitializeBillingController(controllers.NewBillingController(deps))
	return nil
}
