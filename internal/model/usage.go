package model

// ContainerUsage summarises how full one container is.
type ContainerUsage struct {
	Container  Container `json:"container"`
	ItemCount  int       `json:"item_count"`
	UsedVolume float64   `json:"used_volume"`
}

// TotalVolume returns the container volume.
func (cu ContainerUsage) TotalVolume() float64 {
	return cu.Container.Volume()
}

// Fill returns the used volume as a percentage.
func (cu ContainerUsage) Fill() float64 {
	tv := cu.TotalVolume()
	if tv == 0 {
		return 0
	}
	return (cu.UsedVolume / tv) * 100.0
}

// Utilization computes per-container usage in container list order.
// Placements in containers that are not listed are ignored.
func Utilization(containers []Container, placements []PlacementResult) []ContainerUsage {
	index := make(map[string]int, len(containers))
	usage := make([]ContainerUsage, len(containers))
	for i, c := range containers {
		index[c.ID] = i
		usage[i] = ContainerUsage{Container: c}
	}
	for _, p := range placements {
		i, ok := index[p.ContainerID]
		if !ok {
			continue
		}
		usage[i].ItemCount++
		usage[i].UsedVolume += p.Position.Volume()
	}
	return usage
}

// TotalFill returns overall used volume as a percentage of all listed containers.
func TotalFill(usage []ContainerUsage) float64 {
	var used, total float64
	for _, u := range usage {
		used += u.UsedVolume
		total += u.TotalVolume()
	}
	if total == 0 {
		return 0
	}
	return (used / total) * 100.0
}
