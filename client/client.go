// Package client connects the engine to a glfw window and a wgpu device.
// Only the transform uniform upload lives here; pipelines and presentation
// belong to the renderer built on top.
package client

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	tg "github.com/tgrender/tgengine"
)

const UploadSystemName = "transform_upload"

type WindowState struct {
	windowGlfw   *glfw.Window
	WindowWidth  int
	WindowHeight int
	windowTitle  string
}

// ShouldClose reports whether the user asked to close the window.
func (s *WindowState) ShouldClose() bool {
	return s.windowGlfw.ShouldClose()
}

type GpuState struct {
	surface       *wgpu.Surface
	adapter       *wgpu.Adapter
	device        *wgpu.Device
	queue         *wgpu.Queue
	surfaceConfig *wgpu.SurfaceConfiguration

	// TransformBuffer is a storage buffer with TransformUniforms.Data.
	TransformBuffer *wgpu.Buffer
}

func (g *GpuState) Device() *wgpu.Device { return g.device }
func (g *GpuState) Queue() *wgpu.Queue   { return g.queue }

func (g *GpuState) release() {
	if g.TransformBuffer != nil {
		g.TransformBuffer.Release()
	}
	g.queue.Release()
	g.device.Release()
	g.adapter.Release()
	g.surface.Release()
}

type ClientModule struct {
	WindowWidth  int
	WindowHeight int
	WindowTitle  string
}

func (mod ClientModule) Install(app *tg.App, cmd *tg.Commands) {
	if mod.WindowWidth <= 0 {
		mod.WindowWidth = 1280
	}
	if mod.WindowHeight <= 0 {
		mod.WindowHeight = 720
	}
	if mod.WindowTitle == "" {
		mod.WindowTitle = "tgengine"
	}

	windowState, err := createWindowState(mod.WindowWidth, mod.WindowHeight, mod.WindowTitle)
	if err != nil {
		panic(err)
	}
	gpuState, err := createGpuState(windowState)
	if err != nil {
		panic(err)
	}
	cmd.AddResources(windowState, gpuState)

	tg.RenderModule{}.Install(app, cmd)
	app.UseSystem(
		tg.SystemOf(&UploadSystem{}).
			InStage(tg.PostRender).
			Named(UploadSystemName),
	)
	app.SetRunner(windowRunner)

	app.Logger().Infof("client: %dx%d window %q ready", mod.WindowWidth, mod.WindowHeight, mod.WindowTitle)
}

// windowRunner ticks the app until the window closes.
func windowRunner(app *tg.App) {
	windowState, _ := tg.Resource[WindowState](app)
	gpuState, _ := tg.Resource[GpuState](app)
	defer glfw.Terminate()
	defer windowState.windowGlfw.Destroy()
	defer gpuState.release()

	for !windowState.ShouldClose() {
		glfw.PollEvents()
		app.Update()
	}
}

func createWindowState(windowWidth int, windowHeight int, windowTitle string) (*WindowState, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(windowWidth, windowHeight, windowTitle, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}

	return &WindowState{
		windowGlfw:   win,
		WindowWidth:  windowWidth,
		WindowHeight: windowHeight,
		windowTitle:  windowTitle,
	}, nil
}

func createGpuState(s *WindowState) (*GpuState, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(s.windowGlfw))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	queue := device.GetQueue()

	caps := surface.GetCapabilities(adapter)
	surfaceConfig := wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(s.WindowWidth),
		Height:      uint32(s.WindowHeight),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, &surfaceConfig)

	return &GpuState{
		surface:       surface,
		adapter:       adapter,
		device:        device,
		queue:         queue,
		surfaceConfig: &surfaceConfig,
	}, nil
}

// UploadSystem copies TransformUniforms into TransformBuffer whenever they
// were repacked, growing the buffer as needed.
type UploadSystem struct {
	uploaded uint64
}

func (s *UploadSystem) Access() tg.Access {
	return tg.NewAccess().Read(tg.TransformUniforms{}).Write(GpuState{})
}

func (s *UploadSystem) Run(cmd *tg.Commands) {
	uniforms, ok := tg.Resource[tg.TransformUniforms](cmd.App())
	if !ok || uniforms.Version == s.uploaded || len(uniforms.Data) == 0 {
		return
	}
	gpuState, ok := tg.Resource[GpuState](cmd.App())
	if !ok {
		return
	}
	if err := gpuState.ensureTransformBuffer(uint64(len(uniforms.Data))); err != nil {
		cmd.App().Logger().Errorf("client: %v", err)
		return
	}
	if err := gpuState.queue.WriteBuffer(gpuState.TransformBuffer, 0, uniforms.Data); err != nil {
		cmd.App().Logger().Errorf("client: upload transforms: %v", err)
		return
	}
	s.uploaded = uniforms.Version
}

func (g *GpuState) ensureTransformBuffer(size uint64) error {
	if g.TransformBuffer != nil && g.TransformBuffer.GetSize() >= size {
		return nil
	}
	if g.TransformBuffer != nil {
		g.TransformBuffer.Release()
		g.TransformBuffer = nil
	}
	// Doubles on growth.
	buf, err := g.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Transform Uniforms",
		Size:  max(size*2, tg.MatrixStride*64),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create transform buffer: %w", err)
	}
	g.TransformBuffer = buf
	return nil
}
