package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/360nosc0pe/scoped"
	"github.com/360nosc0pe/scoped/internal/dram"
	"github.com/360nosc0pe/scoped/internal/scopedb"
)

var githash = "githash not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	// Create directory <path>, if needed
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err2 := os.MkdirAll(dir, 0775); err2 != nil {
			return "", err2
		}
	}

	// Create an empty file path/filename, if it doesn't exist.
	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper sets up the viper configuration manager: says where to find
// config files and the filename and suffix. Sets some defaults.
func setupViper() error {
	viper.SetDefault("Verbose", false)
	viper.SetDefault("memsize", 32<<20)
	viper.SetDefault("source.type", "ramp")
	viper.SetDefault("source.blockwords", 1024)
	viper.SetDefault("source.rate", 1e6)
	viper.SetDefault("host.data", fmt.Sprintf("127.0.0.1:%d", scoped.Ports.Data))
	viper.SetDefault("data.bind", fmt.Sprintf("0.0.0.0:%d", scoped.Ports.Data))
	viper.SetDefault("streamer.enable", false)
	viper.SetDefault("streamer.length", 16384)
	viper.SetDefault("streamer.threshold", 128)
	viper.SetDefault("database.enable", false)

	HOME, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("Error finding User Home Dir: %s\n", err)
	}
	dotScoped := filepath.Join(HOME, ".scoped")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotScoped, filename+suffix); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/scoped"))
	viper.AddConfigPath(dotScoped)
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	probFile, err := os.OpenFile(pfname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Could not open log file '%s'", pfname))
	}
	probLogger := log.New(probFile, "", log.LstdFlags)
	probLogger.SetOutput(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	return probLogger
}

func makeSource() (scoped.SampleSource, error) {
	blockWords := viper.GetInt("source.blockwords")
	rate := viper.GetFloat64("source.rate")
	switch name := viper.GetString("source.type"); name {
	case "ramp":
		return scoped.NewRampSource(blockWords, rate), nil
	case "triangle":
		return scoped.NewTriangleSource(blockWords, rate, 32, 224), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", name)
	}
}

func main() {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	scoped.Build.Date = buildDate
	scoped.Build.Githash = githash
	scoped.Build.Summary = fmt.Sprintf("scoped version %s (git commit %s)", scoped.Build.Version, githash)
	if host, err := os.Hostname(); err == nil {
		scoped.Build.Host = host
	} else {
		scoped.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	flag.Parse()
	if *printVersion {
		fmt.Println(scoped.Build.Summary)
		os.Exit(0)
	}

	if err := setupViper(); err != nil {
		panic(err)
	}
	pfname, err := makeFileExist("$HOME/.scoped", "problems.log")
	if err != nil {
		panic(err)
	}
	scoped.ProblemLogger = startLogger(pfname)
	log.Print(scoped.Build.Summary)

	abort := make(chan struct{})
	defer close(abort)

	mem := dram.New(viper.GetInt("memsize"))
	pipelines := scoped.NewPipelines(mem)

	source, err := makeSource()
	if err != nil {
		panic(err)
	}
	if err := source.Configure(); err != nil {
		panic(err)
	}
	if err := source.StartRun(); err != nil {
		panic(err)
	}
	go pipelines.Run(source, abort)

	// DMA reader -> UDP data path.
	uploadRegs := scoped.NewDMAReaderRegs()
	sender, err := scoped.NewDMASender(mem, uploadRegs, viper.GetString("host.data"))
	if err != nil {
		panic(err)
	}
	go sender.Run(abort)

	// Continuous waveform mode, layered on the upload path.
	var streamer *scoped.TriggeredStreamer
	if viper.GetBool("streamer.enable") {
		upload, err := scoped.NewUploadClient(uploadRegs, viper.GetString("data.bind"))
		if err != nil {
			panic(err)
		}
		streamer = scoped.NewTriggeredStreamer(pipelines[0], upload,
			0, viper.GetUint32("streamer.length"), byte(viper.GetUint32("streamer.threshold")))
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", scoped.Ports.Waveform))
		if err != nil {
			panic(err)
		}
		go streamer.Serve(ln, abort)
		go streamer.Run(abort)
	}

	var db *scopedb.ScopeDBConnection
	if viper.GetBool("database.enable") {
		db = scopedb.StartDBConnection(abort)
	}

	messageChan := make(chan scoped.ClientUpdate, 10)
	go scoped.RunClientUpdater(messageChan, scoped.Ports.Status)

	ctl := scoped.NewScopeControl(pipelines, source, streamer, uploadRegs, db)
	scoped.RunRPCServer(ctl, messageChan, scoped.Ports.RPC)
}
