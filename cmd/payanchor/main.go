package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/payanchor/payanchor/internal/alert"
	"github.com/payanchor/payanchor/internal/anchor"
	"github.com/payanchor/payanchor/internal/config"
	"github.com/payanchor/payanchor/internal/ledger"
	"github.com/payanchor/payanchor/internal/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "payanchor",
	Short: "PayAnchor - Payment Ledger Anchoring Engine",
	Long:  `Maintains a tamper-evident payment ledger and anchors its Merkle root to an external chain`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "payanchor.yaml", "config file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(anchorContractCmd)
	rootCmd.AddCommand(clearCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("payanchor v0.1.0")
		fmt.Println("Payment Ledger Anchoring Engine")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the ledger store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if cfg.Store.Backend == "bolt" {
			if err := os.MkdirAll(cfg.Store.DataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
		}

		_, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		fmt.Printf("Initialized ledger store for contract: %s\n", cfg.Contract.ID)
		fmt.Printf("Backend: %s\n", cfg.Store.Backend)
		return nil
	},
}

var (
	submitPaymentID string
	submitPrincipal string
	submitInterest  string
	submitTotal     string
	submitCurrency  string
	submitDueDate   string
	submitMethod    string
	submitNoteID    string
	submitType      string
	submitStatus    string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record a payment event and anchor the updated ledger root",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := buildService()
		if err != nil {
			return err
		}
		defer cleanup()

		principal, err := decimal.NewFromString(submitPrincipal)
		if err != nil {
			return fmt.Errorf("invalid principal: %w", err)
		}
		interest, err := decimal.NewFromString(submitInterest)
		if err != nil {
			return fmt.Errorf("invalid interest: %w", err)
		}
		total, err := decimal.NewFromString(submitTotal)
		if err != nil {
			return fmt.Errorf("invalid total: %w", err)
		}

		result, err := svc.SubmitPayment(context.Background(), ledger.PaymentInput{
			PaymentID:        submitPaymentID,
			NoteID:           submitNoteID,
			EventType:        submitType,
			ScheduledDueDate: submitDueDate,
			Amount: ledger.Money{
				Principal: principal,
				Interest:  interest,
				Total:     total,
				Currency:  submitCurrency,
			},
			Method:      submitMethod,
			StatusAfter: submitStatus,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Event:    %s\n", result.Event.EventID)
		fmt.Printf("Root:     %s\n", result.Snapshot.PaymentLedgerRoot)
		fmt.Printf("Events:   %d\n", result.Snapshot.IncludedEventCount)
		fmt.Printf("Anchored: %s (%s)\n", result.Receipt.TxID, result.Receipt.NetworkName)
		return nil
	},
}

var auditOut string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Export the audit package for independent verification",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := buildService()
		if err != nil {
			return err
		}
		defer cleanup()

		pkg, err := svc.BuildAuditPackage(context.Background())
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(pkg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode audit package: %w", err)
		}

		if auditOut == "" {
			fmt.Println(string(data))
			return nil
		}
		if err := os.WriteFile(auditOut, data, 0644); err != nil {
			return fmt.Errorf("failed to write audit package: %w", err)
		}
		fmt.Printf("Audit package written to %s (%d events, root %s)\n",
			auditOut, pkg.IncludedEventCount, pkg.ComputedRoot)
		return nil
	},
}

var verifyTx string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Read back an anchored snapshot and compare roots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyTx == "" {
			return fmt.Errorf("--tx is required")
		}

		svc, cleanup, err := buildService()
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := svc.VerifyAnchoredSnapshot(context.Background(), verifyTx)
		if result != nil {
			fmt.Printf("Anchored root: %s\n", result.AnchoredRoot)
			fmt.Printf("Computed root: %s\n", result.ComputedRoot)
			fmt.Printf("Events:        %d\n", result.EventCount)
		}
		if err != nil {
			return err
		}

		fmt.Println("✅ Ledger matches the anchored root")
		return nil
	},
}

var (
	contractTermsFile string
	creditFile        string
)

var anchorContractCmd = &cobra.Command{
	Use:   "anchor-contract",
	Short: "Anchor the contract terms and credit summary, establishing the live snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		terms, err := readJSONFile(contractTermsFile)
		if err != nil {
			return fmt.Errorf("failed to read contract terms: %w", err)
		}
		credit, err := readJSONFile(creditFile)
		if err != nil {
			return fmt.Errorf("failed to read credit summary: %w", err)
		}

		svc, cleanup, err := buildService()
		if err != nil {
			return err
		}
		defer cleanup()

		ref, receipt, err := svc.AnchorContract(context.Background(), terms, credit)
		if err != nil {
			return err
		}

		fmt.Printf("Contract hash: %s\n", ref.ContractHash)
		fmt.Printf("Credit hash:   %s\n", ref.CreditHash)
		fmt.Printf("Anchored:      %s (%s)\n", receipt.TxID, receipt.NetworkName)
		return nil
	},
}

var clearConfirmed bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the entire ledger store (irreversible, test/reset only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearConfirmed {
			return fmt.Errorf("refusing to wipe the ledger without --yes")
		}

		svc, cleanup, err := buildService()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := svc.Clear(context.Background()); err != nil {
			return err
		}

		fmt.Println("Ledger store cleared")
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitPaymentID, "payment-id", "", "payment identifier")
	submitCmd.Flags().StringVar(&submitPrincipal, "principal", "", "principal portion")
	submitCmd.Flags().StringVar(&submitInterest, "interest", "", "interest portion")
	submitCmd.Flags().StringVar(&submitTotal, "total", "", "total amount")
	submitCmd.Flags().StringVar(&submitCurrency, "currency", "USD", "currency code")
	submitCmd.Flags().StringVar(&submitDueDate, "due-date", "", "scheduled due date (YYYY-MM-DD)")
	submitCmd.Flags().StringVar(&submitMethod, "method", "ACH", "payment method")
	submitCmd.Flags().StringVar(&submitNoteID, "note-id", "", "note identifier")
	submitCmd.Flags().StringVar(&submitType, "event-type", "PAYMENT_RECEIVED", "event type")
	submitCmd.Flags().StringVar(&submitStatus, "status-after", "CURRENT", "contract status after this payment")

	auditCmd.Flags().StringVar(&auditOut, "out", "", "write the audit package to a file instead of stdout")

	verifyCmd.Flags().StringVar(&verifyTx, "tx", "", "anchor transaction id to verify against")

	anchorContractCmd.Flags().StringVar(&contractTermsFile, "terms", "", "contract terms JSON file")
	anchorContractCmd.Flags().StringVar(&creditFile, "credit", "", "credit summary JSON file")

	clearCmd.Flags().BoolVar(&clearConfirmed, "yes", false, "confirm the irreversible wipe")
}

func openStore(cfg *config.Config) (ledger.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		s, err := store.NewPostgres(context.Background(), cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, func() { s.Close() }, nil
	default:
		dbPath := filepath.Join(cfg.Store.DataDir, "payanchor.db")
		s, err := store.NewBolt(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open ledger store: %w", err)
		}
		return s, func() { s.Close() }, nil
	}
}

func buildService() (*ledger.Service, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	s, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	secrets := anchor.StaticSecrets{
		anchor.RoleContract: {
			Address:    cfg.Signers.Contract.Address,
			Passphrase: cfg.Signers.Contract.Passphrase,
		},
		anchor.RolePayments: {
			Address:    cfg.Signers.Payments.Address,
			Passphrase: cfg.Signers.Payments.Passphrase,
		},
	}

	client := anchor.NewClient(anchor.NewJSONRPCClient(cfg.Chain.RPCURL), secrets, anchor.Options{
		NetworkName:     cfg.Chain.NetworkName,
		ConfirmTimeout:  cfg.Chain.ConfirmTimeout,
		ConfirmInterval: cfg.Chain.ConfirmInterval,
		VerifyAttempts:  cfg.Chain.VerifyAttempts,
		VerifyDelay:     cfg.Chain.VerifyDelay,
	})

	svc := ledger.NewService(s, client, cfg.Chain.ChainID, cfg.Contract.ID, cfg.Contract.PropertyID)

	if cfg.Alerts.Enabled {
		svc.SetAlertManager(alert.NewManager(true, cfg.Alerts.SlackWebhook))
	}

	return svc, closeStore, nil
}

func readJSONFile(path string) (interface{}, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var record map[string]interface{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}
	return record, nil
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
