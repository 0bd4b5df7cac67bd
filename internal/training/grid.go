package training

import (
	"math"
	"sync"

	"kora/internal/model"
)

// SpikeGrid is a dense steps x neurons boolean matrix stored row-major, one
// row per simulation step.
type SpikeGrid struct {
	steps   int
	neurons int
	cells   []bool
}

func (g *SpikeGrid) Steps() int {
	return g.steps
}

func (g *SpikeGrid) Neurons() int {
	return g.neurons
}

// Row returns the spike mask of one step. The slice aliases the grid.
func (g *SpikeGrid) Row(step int) []bool {
	return g.cells[step*g.neurons : (step+1)*g.neurons]
}

func (g *SpikeGrid) At(step, neuron int) bool {
	return g.cells[step*g.neurons+neuron]
}

// Spikes counts the set cells.
func (g *SpikeGrid) Spikes() int {
	total := 0
	for _, c := range g.cells {
		if c {
			total++
		}
	}
	return total
}

// Bytes is the memory held by the grid cells.
func (g *SpikeGrid) Bytes() int {
	return len(g.cells)
}

// StepIndex quantizes a spike time to its containing step. It reports false
// for times that fall outside [0, steps).
func StepIndex(t, dt float64, steps int) (int, bool) {
	if math.IsNaN(t) || t < 0 {
		return 0, false
	}
	idx := math.Floor(t / dt)
	if idx >= float64(steps) {
		return 0, false
	}
	return int(idx), true
}

// BuildGrid places every spike time into its step row. Neurons are split
// across workers; each worker only writes its own neurons' columns.
func BuildGrid(trains []model.SpikeTrain, steps int, dt float64, workers int) *SpikeGrid {
	if steps < 0 {
		steps = 0
	}
	grid := &SpikeGrid{
		steps:   steps,
		neurons: len(trains),
		cells:   make([]bool, steps*len(trains)),
	}
	if steps == 0 || len(trains) == 0 {
		return grid
	}

	fill := func(neuron int) {
		for _, t := range trains[neuron] {
			if step, ok := StepIndex(t, dt, steps); ok {
				grid.cells[step*grid.neurons+neuron] = true
			}
		}
	}

	if workers <= 1 || len(trains) < 2 {
		for neuron := range trains {
			fill(neuron)
		}
		return grid
	}
	if workers > len(trains) {
		workers = len(trains)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for neuron := range jobs {
				fill(neuron)
			}
		}()
	}
	for neuron := range trains {
		jobs <- neuron
	}
	close(jobs)
	wg.Wait()

	return grid
}
