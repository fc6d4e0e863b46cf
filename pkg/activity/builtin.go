package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/secmon-lab/pippin/pkg/domain/model"
	"github.com/secmon-lab/pippin/pkg/domain/types"
	"github.com/secmon-lab/pippin/pkg/utils/logging"
)

// tick scales the simulated duration of built-in activities. Tests
// shrink it to keep runs fast.
var tick = time.Second

// sleep pauses for d unless the context is cancelled first
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Registry assembles the built-in activity table. The host application
// may register its own activities instead; the scheduler treats entries
// opaquely.
func Registry() (*model.Registry, error) {
	return model.NewRegistry(
		model.Activity{Name: "nap", Category: types.CategoryRestorative, Run: nap},
		model.Activity{Name: "play", Category: types.CategoryModerate, Run: play},
		model.Activity{Name: "draw", Category: types.CategoryCreative, Run: draw},
		model.Activity{Name: "take_a_walk", Category: types.CategoryOutdoor, Run: takeAWalk},
		model.Activity{Name: "post_update", Category: types.CategorySocial, Run: postUpdate},
		model.Activity{Name: "memory_summary", Category: types.CategoryReflective, Run: memorySummary},
	)
}

// nap restores energy
func nap(ctx context.Context, state *model.CharacterState, _ model.MemoryHandle) (string, error) {
	sleep(ctx, 3*tick)

	state.Update(func(s *model.State) {
		s.Energy += 30
	})

	return "rested", nil
}

// play trades energy for happiness
func play(ctx context.Context, state *model.CharacterState, _ model.MemoryHandle) (string, error) {
	sleep(ctx, 2*tick)

	state.Update(func(s *model.State) {
		s.Energy -= 10
		s.Happiness += 20
	})

	return "", nil
}

var sketchSubjects = []string{
	"a family of glowing mushrooms",
	"the crooked old oak by the pond",
	"clouds shaped like teapots",
	"a ladybug crossing a mossy stone",
	"the view from the tallest hill",
}

// draw produces a sketch and stores it as a memory note
func draw(ctx context.Context, state *model.CharacterState, mem model.MemoryHandle) (string, error) {
	// Rotate subjects by how often we've drawn before
	count, err := mem.CountSince(ctx, "draw", time.Time{})
	if err != nil {
		return "", err
	}
	subject := sketchSubjects[count%len(sketchSubjects)]

	sleep(ctx, 3*tick)

	state.Update(func(s *model.State) {
		s.Energy -= 15
		s.Happiness += 10
		s.XP += 5
	})

	result := fmt.Sprintf("sketched %s", subject)
	if _, err := mem.Note(ctx, result); err != nil {
		return "", err
	}

	return result, nil
}

var walkPaths = []string{
	"the mossy path along the creek",
	"the meadow behind the orchard",
	"the winding trail up the ridge",
	"the shortcut through the ferns",
}

// takeAWalk is a gentle outdoor outing, avoiding the most recent route
func takeAWalk(ctx context.Context, state *model.CharacterState, mem model.MemoryHandle) (string, error) {
	count, err := mem.CountSince(ctx, "take_a_walk", time.Time{})
	if err != nil {
		return "", err
	}
	path := walkPaths[count%len(walkPaths)]

	sleep(ctx, 4*tick)

	state.Update(func(s *model.State) {
		s.Energy -= 10
		s.Happiness += 10
		s.XP += 4
	})

	result := fmt.Sprintf("wandered %s", path)
	if _, err := mem.Note(ctx, result); err != nil {
		return "", err
	}

	return result, nil
}

// postUpdate shares a short status with the outside world, reusing a
// recent memory when one is similar enough.
func postUpdate(ctx context.Context, state *model.CharacterState, mem model.MemoryHandle) (string, error) {
	update := "feeling curious about the world today"

	similar, err := mem.FindSimilar(ctx, "a delightful recent discovery", 1)
	if err != nil {
		return "", err
	}
	if len(similar) > 0 {
		update = fmt.Sprintf("still thinking about how I %s", similar[0].Record.Result)
	}

	sleep(ctx, tick)

	state.Update(func(s *model.State) {
		s.Happiness += 5
		s.XP += 2
	})

	result := fmt.Sprintf("posted an update: %s", update)
	if _, err := mem.Note(ctx, result); err != nil {
		return "", err
	}

	return result, nil
}

// memorySummary reflects over everything remembered so far and gains
// experience from it.
func memorySummary(ctx context.Context, state *model.CharacterState, mem model.MemoryHandle) (string, error) {
	sleep(ctx, 2*tick)

	total := 0
	for _, name := range []string{"nap", "play", "draw", "take_a_walk", "post_update", "memory_summary"} {
		count, err := mem.CountSince(ctx, name, time.Time{})
		if err != nil {
			return "", err
		}
		total += count
	}

	state.Update(func(s *model.State) {
		s.XP += total
	})

	logging.From(ctx).Debug("summarized memories", "total", total)

	return fmt.Sprintf("summarized %d memories", total), nil
}
