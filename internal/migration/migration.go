package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/estate/internal/audit/domain"
	exchangeratedomain "github.com/smallbiznis/estate/internal/exchangerate/domain"
	invoicedomain "github.com/smallbiznis/estate/internal/invoice/domain"
	pricingdomain "github.com/smallbiznis/estate/internal/pricing/domain"
	refdomain "github.com/smallbiznis/estate/internal/reference/domain"
	taxdomain "github.com/smallbiznis/estate/internal/tax/domain"
	workflowdomain "github.com/smallbiznis/estate/internal/workflow/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every table the service owns, parents first.
func Models() []any {
	return []any{
		&refdomain.Currency{},
		&refdomain.CountryProfile{},
		&exchangeratedomain.ExchangeRate{},
		&taxdomain.TaxRule{},
		&pricingdomain.Plan{},
		&pricingdomain.CountryPlanPrice{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoiceSequence{},
		&workflowdomain.Workflow{},
		&workflowdomain.AuditEntry{},
		&auditdomain.AuditLog{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the models. Used for sqlite and mysql.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
