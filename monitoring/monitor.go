// Package monitoring serves the state of running devices over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/vgpu/gpu/device"
	"github.com/sarchlab/vgpu/monitoring/web"
	"github.com/sarchlab/vgpu/sim/idgen"
	"github.com/sarchlab/vgpu/sim/timing"
)

// Monitor turns a device run into a server that can be inspected and paused
// from a browser.
type Monitor struct {
	engine     timing.Engine
	devices    []*device.Device
	portNumber int
	ids        idgen.Generator
	addr       *net.TCPAddr

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{ids: idgen.NewGlobal()}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterEngine registers the engine that runs the devices.
func (m *Monitor) RegisterEngine(e timing.Engine) {
	m.engine = e
}

// RegisterDevice registers a device to be monitored.
func (m *Monitor) RegisterDevice(d *device.Device) {
	for _, existing := range m.devices {
		if existing.Name() == d.Name() {
			panic("device " + d.Name() + " already registered")
		}
	}

	m.devices = append(m.devices, d)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.ids.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the page.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/devices", m.listDevices)
	r.HandleFunc("/api/device/{name}", m.deviceSnapshot)
	r.HandleFunc("/api/device/{name}/{section}", m.deviceSection)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.addr = listener.Addr().(*net.TCPAddr)

	fmt.Fprintf(os.Stderr, "Monitoring devices with %s\n", m.URL())

	r := m.router()

	go func() {
		err := http.Serve(listener, r)
		dieOnErr(err)
	}()
}

// URL returns the address of the page, or an empty string before the
// server starts.
func (m *Monitor) URL() string {
	if m.addr == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d", m.addr.Port)
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%d}", m.engine.CurrentTime())
}

func (m *Monitor) listDevices(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.devices))
	for _, d := range m.devices {
		names = append(names, d.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) deviceSnapshot(w http.ResponseWriter, r *http.Request) {
	d := m.findDeviceOr404(w, mux.Vars(r)["name"])
	if d == nil {
		return
	}

	writeJSON(w, d.Snapshot())
}

func (m *Monitor) deviceSection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	d := m.findDeviceOr404(w, vars["name"])
	if d == nil {
		return
	}

	s := d.Snapshot()

	var section any

	switch vars["section"] {
	case "resources":
		section = s.Resources
	case "contexts":
		section = s.Contexts
	case "scanouts":
		section = s.Scanouts
	case "mappings":
		section = s.Mappings
	case "fences":
		section = s.Fences
	case "stats":
		section = struct {
			Device device.Stats `json:"device"`
			Frames any          `json:"frames"`
		}{s.Stats, s.Frames}
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "Unknown section %s", vars["section"])

		return
	}

	writeJSON(w, section)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	d := m.findDeviceOr404(w, mux.Vars(r)["name"])
	if d == nil {
		return
	}

	snapshot := d.Snapshot()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&snapshot)
	serializer.SetMaxDepth(1)

	err := serializer.Serialize(w)
	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	d := m.findDeviceOr404(w, req.CompName)
	if d == nil {
		return
	}

	snapshot := d.Snapshot()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&snapshot)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findDeviceOr404(
	w http.ResponseWriter,
	name string,
) *device.Device {
	for _, d := range m.devices {
		if d.Name() == name {
			return d
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Device not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]progressView, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.view())
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := p.CPUPercent()
	dieOnErr(err)

	memorySize, err := p.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(b)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
