package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/icore/internal/anonscript"
	"github.com/ppiankov/icore/internal/config"
	"github.com/ppiankov/icore/internal/dicomcli"
	"github.com/ppiankov/icore/internal/finder"
	"github.com/ppiankov/icore/internal/orchestrator"
	"github.com/ppiankov/icore/internal/pipeline"
)

var (
	runConfigPath   string
	runFindSCU      string
	runMoveSCU      string
	runGetSCU       string
	runEchoSCU      string
	runDictPath     string
	runDaemonBin    string
	runDaemonHome   string
	runDaemonHomeEnv string
	runDaemonPort   int
	runDaemonName   string
	runDaemonURL    string
	runQuarantine   []string
	runCallingAET   string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to job configuration YAML")
	runCmd.Flags().StringVar(&runFindSCU, "findscu", "findscu", "Path to the findscu binary")
	runCmd.Flags().StringVar(&runMoveSCU, "movescu", "movescu", "Path to the movescu binary")
	runCmd.Flags().StringVar(&runGetSCU, "getscu", "getscu", "Path to the getscu binary")
	runCmd.Flags().StringVar(&runEchoSCU, "echoscu", "echoscu", "Path to the echoscu binary")
	runCmd.Flags().StringVar(&runDictPath, "dict-path", "", "Path to the DICOM data dictionary file")
	runCmd.Flags().StringVar(&runDaemonBin, "daemon-bin", "", "Path to the pipeline daemon executable")
	runCmd.Flags().StringVar(&runDaemonHome, "daemon-home", "", "Value for the daemon's home environment variable")
	runCmd.Flags().StringVar(&runDaemonHomeEnv, "daemon-home-env", "PIPELINE_HOME", "Name of the daemon's home environment variable")
	runCmd.Flags().IntVar(&runDaemonPort, "daemon-port", 8080, "Pipeline daemon HTTP port")
	runCmd.Flags().StringVar(&runDaemonName, "daemon-binary-name", "", "Expected process name of the daemon, for safe reclaim")
	runCmd.Flags().StringVar(&runDaemonURL, "daemon-url", "", "Base URL of the daemon's HTTP surface (default: http://127.0.0.1:<daemon-port>)")
	runCmd.Flags().StringSliceVar(&runQuarantine, "quarantine-dir", nil, "Quarantine subtree(s) to count")
	runCmd.Flags().StringVar(&runCallingAET, "calling-aet", "ICORE", "Calling AE title used for PACS calls")
	_ = runCmd.MarkFlagRequired("config")
}

// renderAnonymizerScript writes anonymizer_script.xml and lookup_table.txt
// into the job's appdata directory, so the pipeline daemon picks them up
// from its home directory on spawn. An explicit AnonymizerXML overrides
// script synthesis entirely; a mapping spreadsheet is parsed through a
// sqlite-backed cache so large sheets aren't reparsed on every run.
func renderAnonymizerScript(cfg *config.Config) error {
	scriptText := cfg.AnonymizerXML
	if scriptText == "" {
		rendered, err := anonscript.Render(anonscript.Script{
			Keep:      cfg.Anonymization.Keep,
			DateShift: cfg.Anonymization.DateShift,
			Randomize: cfg.Anonymization.Randomize,
			Params:    anonscript.Params{DateInc: cfg.DateShiftDays, UIDRoot: "1.2.840.113619"},
			Toggles: anonscript.Toggles{
				RemoveOverlays:            cfg.Toggles.RemoveOverlays,
				RemoveCurves:              cfg.Toggles.RemoveCurves,
				RemovePrivateGroups:       cfg.Toggles.RemovePrivateGroups,
				RemoveUnspecifiedElements: cfg.Toggles.RemoveUnspecifiedElements,
			},
		})
		if err != nil {
			return fmt.Errorf("render anonymizer script: %w", err)
		}
		scriptText = rendered
	}
	if err := os.WriteFile(filepath.Join(cfg.AppdataDir, "anonymizer_script.xml"), []byte(scriptText), 0644); err != nil {
		return fmt.Errorf("write anonymizer script: %w", err)
	}

	lookupText := cfg.LookupTableText
	if lookupText == "" && cfg.MappingSheetPath != "" {
		cache, err := anonscript.OpenLookupCache(cfg.AppdataDir)
		if err != nil {
			return fmt.Errorf("open lookup cache: %w", err)
		}
		defer cache.Close()

		mt, err := anonscript.LoadMappingTableCached(cache, cfg.MappingSheetPath)
		if err != nil {
			return fmt.Errorf("load mapping spreadsheet: %w", err)
		}
		lookupText = anonscript.ResolveLookupTable("", mt)
	}
	if lookupText != "" {
		if err := os.WriteFile(filepath.Join(cfg.AppdataDir, "lookup_table.txt"), []byte(lookupText), 0644); err != nil {
			return fmt.Errorf("write lookup table: %w", err)
		}
	}
	return nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a configured de-identification/retrieval job",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "icore: %v\n", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "icore: %v\n", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	defer cancel()

	bin := dicomcli.Binaries{
		FindSCU: runFindSCU, MoveSCU: runMoveSCU, GetSCU: runGetSCU, EchoSCU: runEchoSCU,
		DictPath: runDictPath,
	}

	pacsList := cfg.PacsConfigurations()
	if len(pacsList) > 0 {
		if err := orchestrator.EchoPreflight(ctx, bin, runCallingAET, pacsList); err != nil {
			fmt.Fprintf(os.Stderr, "icore: %v\n", err)
			return err
		}
	}

	if err := renderAnonymizerScript(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "icore: %v\n", err)
		return err
	}

	daemonURL := runDaemonURL
	if daemonURL == "" {
		daemonURL = fmt.Sprintf("http://127.0.0.1:%d", runDaemonPort)
	}

	supervisor := pipeline.New(pipeline.Config{
		BinaryPath:      runDaemonBin,
		HomeEnvVar:      runDaemonHomeEnv,
		HomeDir:         runDaemonHome,
		Port:            runDaemonPort,
		BinaryName:      runDaemonName,
		QuarantineRoots: runQuarantine,
		SkipIndexFiles:  []string{"index.html", "index.htm"},
	})

	newFindClient := func(p finder.PacsConfiguration) finder.FindClient {
		return &dicomcli.Client{Bin: bin, Host: p.Host, Port: p.Port, CallingAET: runCallingAET, CalledAET: p.AET}
	}
	newRetrieveClient := func(p finder.PacsConfiguration) finder.RetrieveClient {
		return &dicomcli.Client{Bin: bin, Host: p.Host, Port: p.Port, CallingAET: runCallingAET, CalledAET: p.AET}
	}

	job := &orchestrator.Job{
		Cfg:               cfg,
		Supervisor:        supervisor,
		NewFindClient:     newFindClient,
		NewRetrieveClient: newRetrieveClient,
		Puller:            &orchestrator.MetadataPuller{BaseURL: daemonURL, AppdataDir: cfg.AppdataDir},
		ReturnTags:        []string{"AccessionNumber", "PatientID", "StudyDate", "StudyInstanceUID"},
	}

	result, err := job.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "icore: %v\n", err)
		return err
	}

	fmt.Printf("run_id=%s rows_completed=%d studies_downloaded=%d failed_queries=%d\n",
		result.RunID, result.RowsCompleted, result.StudiesDownloaded, len(result.FailedQueryRows))
	return nil
}
