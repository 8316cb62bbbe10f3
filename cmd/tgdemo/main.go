package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/pkg/profile"

	tg "github.com/tgrender/tgengine"
	"github.com/tgrender/tgengine/client"
)

// Spinning rotates its entity around Y, in radians per second.
type Spinning struct {
	Speed float32
}

type SpinSystem struct{}

func (SpinSystem) Access() tg.Access {
	return tg.NewAccess().Read(Spinning{}, tg.Time{}).Write(tg.Transform{})
}

func (SpinSystem) Run(cmd *tg.Commands) {
	clock, ok := tg.Resource[tg.Time](cmd.App())
	if !ok {
		return
	}
	transforms := tg.MakeWriteStorage[tg.Transform](cmd)
	dt := float32(clock.Dt.Seconds())
	tg.MakeQuery1[Spinning](cmd).With(tg.Transform{}).Map(func(eid tg.EntityId, spin *Spinning) bool {
		tr, _ := transforms.GetMut(eid)
		tr.Rotation = mgl32.QuatRotate(spin.Speed*dt, mgl32.Vec3{0, 1, 0}).Mul(tr.Rotation).Normalize()
		return true
	})
}

func main() {
	windowed := flag.Bool("window", false, "open a window and upload transforms to the GPU")
	frames := flag.Int("frames", 3, "ticks to run when headless")
	depth := flag.Int("depth", 3, "length of the demo parent chain")
	profileMode := flag.String("profile", "", "cpu or mem; writes the profile to the working directory")
	flag.Parse()
	if *depth < 1 {
		*depth = 1
	}

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		fmt.Fprintf(os.Stderr, "unknown -profile mode %q\n", *profileMode)
		os.Exit(2)
	}

	app := tg.NewApp().UseModules(tg.DefaultModules())
	if *windowed {
		app.UseModules(client.ClientModule{WindowTitle: "tgdemo"})
	}
	app.UseSystem(
		tg.SystemOf(SpinSystem{}).
			InStage(tg.Update).
			Named("spin"),
	)

	ids, err := tg.LoadScene(app.Commands(), demoScene(*depth))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	root := ids[rootID]
	app.Commands().AddComponents(root, &Spinning{Speed: math.Pi / 2})

	if *windowed {
		app.Run()
		return
	}

	for i := 0; i < *frames; i++ {
		app.Update()
	}
	printUniforms(app)
}

var rootID = uuid.MustParse("6f1c5a2e-8a4b-4c1e-9a57-0d1f3b6c2e10")

func demoScene(depth int) *tg.SceneDef {
	scene := &tg.SceneDef{}
	parent := uuid.Nil
	for i := 0; i < depth; i++ {
		id := uuid.New()
		if i == 0 {
			id = rootID
		}
		tr := tg.NewTransform()
		tr.Position = mgl32.Vec3{0, 1, 0}
		scene.Nodes = append(scene.Nodes, tg.NodeDef{
			ID:        id,
			Parent:    parent,
			Name:      fmt.Sprintf("node-%d", i),
			Transform: tr,
			Drawable:  true,
		})
		parent = id
	}
	return scene
}

func printUniforms(app *tg.App) {
	uniforms, ok := tg.Resource[tg.TransformUniforms](app)
	if !ok {
		return
	}
	globals := tg.MakeReadStorage[tg.GlobalMatrix](app.Commands())
	for _, eid := range uniforms.Entities {
		global, _ := globals.Get(eid)
		fmt.Printf("entity %d translation %v\n", eid, global.Matrix.Col(3).Vec3())
	}
	fmt.Printf("%d matrices, %d bytes\n", len(uniforms.Entities), len(uniforms.Data))
}
